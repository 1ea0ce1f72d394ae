package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"main/internal/model"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Option holds the PostgreSQL connection settings for the calc store.
type Option struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the option as a postgres connection string.
func (o Option) DSN() string {
	host := o.Host
	if host == "" {
		host = "localhost"
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: "sslmode=" + sslMode,
	}
	if o.User != "" {
		u.User = url.UserPassword(o.User, o.Password)
	}
	if o.Database != "" {
		u.Path = "/" + o.Database
	}
	return u.String()
}

// calcDefRow is the persisted shape of a calculated-rate definition.
// Consts and DependsOn are stored as JSON text to keep the schema flat.
type calcDefRow struct {
	RateName   string    `gorm:"column:rate_name;primaryKey"`
	BidFormula string    `gorm:"column:bid_formula"`
	AskFormula string    `gorm:"column:ask_formula"`
	Consts     string    `gorm:"column:consts"`
	DependsOn  string    `gorm:"column:depends_on"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (calcDefRow) TableName() string { return "calc_defs" }

func rowFromDef(def model.CalcDef) (calcDefRow, error) {
	consts, err := json.Marshal(def.Consts)
	if err != nil {
		return calcDefRow{}, errors.Wrap(err, "encode consts").With("rate", def.RateName)
	}
	deps, err := json.Marshal(def.DependsOn)
	if err != nil {
		return calcDefRow{}, errors.Wrap(err, "encode depends_on").With("rate", def.RateName)
	}
	return calcDefRow{
		RateName:   def.RateName,
		BidFormula: def.BidFormula,
		AskFormula: def.AskFormula,
		Consts:     string(consts),
		DependsOn:  string(deps),
	}, nil
}

func (r calcDefRow) toDef() (model.CalcDef, error) {
	def := model.CalcDef{
		RateName:   r.RateName,
		BidFormula: r.BidFormula,
		AskFormula: r.AskFormula,
	}
	if r.Consts != "" {
		if err := json.Unmarshal([]byte(r.Consts), &def.Consts); err != nil {
			return model.CalcDef{}, errors.Wrap(err, "decode consts").With("rate", r.RateName)
		}
	}
	if r.DependsOn != "" {
		if err := json.Unmarshal([]byte(r.DependsOn), &def.DependsOn); err != nil {
			return model.CalcDef{}, errors.Wrap(err, "decode depends_on").With("rate", r.RateName)
		}
	}
	return def, nil
}

// Store persists calculated-rate definitions in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects and migrates the calc_defs table.
func Open(opt Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(opt.DSN()), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open calc store")
	}
	s := &Store{db: db}
	if err := db.AutoMigrate(&calcDefRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate calc store")
	}
	return s, nil
}

// NewStore wraps an existing connection, used by tests.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Load returns every stored definition.
func (s *Store) Load(ctx context.Context) ([]model.CalcDef, error) {
	if s == nil || s.db == nil {
		return nil, exception.ErrNilInstance
	}
	var rows []calcDefRow
	if err := s.db.WithContext(ctx).Order("rate_name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load calc defs")
	}
	defs := make([]model.CalcDef, 0, len(rows))
	for _, row := range rows {
		def, err := row.toDef()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Save upserts one definition keyed by rate name.
func (s *Store) Save(ctx context.Context, def model.CalcDef) error {
	if s == nil || s.db == nil {
		return exception.ErrNilInstance
	}
	row, err := rowFromDef(def)
	if err != nil {
		return err
	}
	row.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rate_name"}},
			UpdateAll: true,
		}).
		Create(&row).Error; err != nil {
		return errors.Wrap(err, "save calc def").With("rate", def.RateName)
	}
	return nil
}

// Delete removes one definition.
func (s *Store) Delete(ctx context.Context, rateName string) error {
	if s == nil || s.db == nil {
		return exception.ErrNilInstance
	}
	if err := s.db.WithContext(ctx).
		Where("rate_name = ?", rateName).
		Delete(&calcDefRow{}).Error; err != nil {
		return errors.Wrap(err, "delete calc def").With("rate", rateName)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Merge overlays stored definitions on top of file definitions. A stored
// definition with the same rate name wins; file-only and store-only
// definitions both survive.
func Merge(fileDefs, storedDefs []model.CalcDef) []model.CalcDef {
	byName := make(map[string]int, len(fileDefs))
	merged := make([]model.CalcDef, 0, len(fileDefs)+len(storedDefs))
	for _, def := range fileDefs {
		byName[def.RateName] = len(merged)
		merged = append(merged, def)
	}
	for _, def := range storedDefs {
		if i, ok := byName[def.RateName]; ok {
			merged[i] = def
			continue
		}
		merged = append(merged, def)
	}
	return merged
}
