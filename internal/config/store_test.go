package config

import (
	"context"
	"regexp"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Store", func() {
	var (
		db     *sqlx.DB
		mock   sqlmock.Sqlmock
		ctx    context.Context
		logger *logrus.Logger
	)

	BeforeEach(func() {
		rawDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		db = sqlx.NewDb(rawDB, "postgres")
		mock = m
		ctx = context.Background()
		logger = logrus.New()
		logger.SetLevel(logrus.FatalLevel)
	})

	AfterEach(func() {
		db.Close()
	})

	expectEmptyReload := func() {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, value, updated_at, updated_by FROM config_entries")).
			WillReturnRows(sqlmock.NewRows([]string{"id", "category", "key", "value", "updated_at", "updated_by"}))
	}

	Describe("NewStore", func() {
		It("loads persisted entries on construction", func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, value, updated_at, updated_by FROM config_entries")).
				WillReturnRows(sqlmock.NewRows([]string{"id", "category", "key", "value", "updated_at", "updated_by"}).
					AddRow(int64(1), "rate_limit", "claude-3.tpm_budget", "40000", time.Now(), "system"))

			store, err := NewStore(db, map[string]string{"rate_limit.claude-3.tpm_budget": "20000"}, nil, logger)
			Expect(err).NotTo(HaveOccurred())

			Expect(store.GetInt("rate_limit", "claude-3.tpm_budget", 0)).To(Equal(40000))
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("returns an error when the initial load fails", func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, value, updated_at, updated_by FROM config_entries")).
				WillReturnError(sqlmock.ErrCancelled)

			_, err := NewStore(db, nil, nil, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("resolution priority", func() {
		var store *Store

		BeforeEach(func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, value, updated_at, updated_by FROM config_entries")).
				WillReturnRows(sqlmock.NewRows([]string{"id", "category", "key", "value", "updated_at", "updated_by"}).
					AddRow(int64(1), "cycle", "max_concurrent", "10", time.Now(), "system"))

			var err error
			store, err = NewStore(db,
				map[string]string{"cycle.max_concurrent": "5", "cycle.dry_run": "false"},
				map[string]string{"cycle.max_concurrent": "2"},
				logger)
			Expect(err).NotTo(HaveOccurred())
		})

		It("prefers env over persisted over defaults", func() {
			Expect(store.GetInt("cycle", "max_concurrent", 0)).To(Equal(2))
		})

		It("falls back to defaults when neither env nor persisted set a key", func() {
			Expect(store.GetBool("cycle", "dry_run", true)).To(BeFalse())
		})

		It("returns the fallback for an entirely unknown key", func() {
			Expect(store.GetString("cycle", "nonexistent", "fallback")).To(Equal("fallback"))
		})
	})

	Describe("typed getters", func() {
		var store *Store

		BeforeEach(func() {
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, value, updated_at, updated_by FROM config_entries")).
				WillReturnRows(sqlmock.NewRows([]string{"id", "category", "key", "value", "updated_at", "updated_by"}).
					AddRow(int64(1), "topic", "seed_list", `["budget","zoning"]`, time.Now(), "system").
					AddRow(int64(2), "topic", "thresholds", `{"high":0.8,"low":0.2}`, time.Now(), "system").
					AddRow(int64(3), "sentiment", "confidence_floor", "0.45", time.Now(), "system"))

			var err error
			store, err = NewStore(db, nil, nil, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		It("parses a JSON array via GetList", func() {
			Expect(store.GetList("topic", "seed_list", nil)).To(Equal([]string{"budget", "zoning"}))
		})

		It("returns the fallback when the value isn't valid JSON for GetList", func() {
			Expect(store.GetList("sentiment", "confidence_floor", []string{"default"})).To(Equal([]string{"default"}))
		})

		It("parses a float", func() {
			Expect(store.GetFloat("sentiment", "confidence_floor", 0)).To(Equal(0.45))
		})

		It("extracts a value from a JSON object via GetObject", func() {
			v, err := store.GetObject("topic", "thresholds", ".high")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(0.8))
		})

		It("errors when GetObject's key doesn't exist", func() {
			_, err := store.GetObject("topic", "nonexistent", ".high")
			Expect(err).To(HaveOccurred())
		})

		It("errors when GetObject's query matches nothing", func() {
			_, err := store.GetObject("topic", "thresholds", ".missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Set", func() {
		It("upserts the entry, writes an audit row, and reloads", func() {
			store, err := func() (*Store, error) {
				expectEmptyReload()
				return NewStore(db, nil, nil, logger)
			}()
			Expect(err).NotTo(HaveOccurred())

			mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM config_entries WHERE category = $1 AND key = $2")).
				WithArgs("rate_limit", "claude-3.tpm_budget").
				WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("20000"))

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_entries")).
				WithArgs("rate_limit", "claude-3.tpm_budget", "40000", "ops").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_audit_log")).
				WithArgs(sqlmock.AnyArg(), "rate_limit", "claude-3.tpm_budget", "20000", "40000", "traffic spike", "ops").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			expectEmptyReload()

			err = store.Set(ctx, "rate_limit", "claude-3.tpm_budget", "40000", "traffic spike", "ops")
			Expect(err).NotTo(HaveOccurred())
			Expect(mock.ExpectationsWereMet()).To(Succeed())
		})

		It("rolls back and returns an error when the upsert fails", func() {
			expectEmptyReload()
			store, err := NewStore(db, nil, nil, logger)
			Expect(err).NotTo(HaveOccurred())

			mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM config_entries WHERE category = $1 AND key = $2")).
				WithArgs("rate_limit", "claude-3.tpm_budget").
				WillReturnError(sqlmock.ErrCancelled)

			mock.ExpectBegin()
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO config_entries")).
				WillReturnError(sqlmock.ErrCancelled)
			mock.ExpectRollback()

			err = store.Set(ctx, "rate_limit", "claude-3.tpm_budget", "40000", "traffic spike", "ops")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ListAudit", func() {
		It("returns audit entries ordered most-recent-first", func() {
			expectEmptyReload()
			store, err := NewStore(db, nil, nil, logger)
			Expect(err).NotTo(HaveOccurred())

			now := time.Now()
			mock.ExpectQuery(regexp.QuoteMeta("SELECT id, category, key, old_value, new_value, reason, updated_by, created_at")).
				WithArgs("rate_limit", "claude-3.tpm_budget", 50).
				WillReturnRows(sqlmock.NewRows([]string{"id", "category", "key", "old_value", "new_value", "reason", "updated_by", "created_at"}).
					AddRow("audit-1", "rate_limit", "claude-3.tpm_budget", "20000", "40000", "traffic spike", "ops", now))

			entries, err := store.ListAudit(ctx, "rate_limit", "claude-3.tpm_budget", 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Reason).To(Equal("traffic spike"))
		})
	})
})
