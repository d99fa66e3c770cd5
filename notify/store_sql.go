package notify

import (
	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// watchRow is the relational row backing SQLStore: one row per (address,
// url) pairing, ordered by Position to preserve insertion order (the
// WatchedAddresses ordering invariant, §3).
type watchRow struct {
	ID       uint   `gorm:"primary_key"`
	Address  string `gorm:"index;size:128"`
	URL      string `gorm:"size:2048"`
	Position int
}

func (watchRow) TableName() string { return "notify_watched_addresses" }

// SQLStore is a WatchStore backed by github.com/jinzhu/gorm over
// github.com/go-sql-driver/mysql (§4.7 NEW): a relational alternative to
// RedisStore for operators who already run a MySQL-backed control plane.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps an already-opened *gorm.DB and ensures the backing
// table exists.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&watchRow{}).Error; err != nil {
		return nil, errors.Wrap(err, "migrate notify_watched_addresses")
	}
	return &SQLStore{db: db}, nil
}

// Load returns every address's URL list ordered by Position.
func (s *SQLStore) Load() (map[string][]string, error) {
	var rows []watchRow
	if err := s.db.Order("address, position").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load watched addresses")
	}
	mapping := make(map[string][]string)
	for _, row := range rows {
		mapping[row.Address] = append(mapping[row.Address], row.URL)
	}
	return mapping, nil
}

// Save inserts (addr, url) at the next position, unless it already exists.
func (s *SQLStore) Save(addr, url string) error {
	var existing watchRow
	err := s.db.Where("address = ? AND url = ?", addr, url).First(&existing).Error
	if err == nil {
		return nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return errors.Wrap(err, "check existing watch row")
	}

	var count int
	if err := s.db.Model(&watchRow{}).Where("address = ?", addr).Count(&count).Error; err != nil {
		return errors.Wrap(err, "count watch rows")
	}
	row := watchRow{Address: addr, URL: url, Position: count}
	return errors.Wrap(s.db.Create(&row).Error, "insert watch row")
}

// Delete removes the (addr, url) row.
func (s *SQLStore) Delete(addr, url string) error {
	return errors.Wrap(
		s.db.Where("address = ? AND url = ?", addr, url).Delete(&watchRow{}).Error,
		"delete watch row",
	)
}
