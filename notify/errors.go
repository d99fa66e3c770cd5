package notify

import "github.com/pkg/errors"

// ErrWebhookPostFailure is logged and swallowed by Dispatcher.OnStatus: a
// subscriber's endpoint being unreachable never aborts the underlying
// subscription engine.
var ErrWebhookPostFailure = errors.New("webhook post failure")
