package audit_test

import (
	"context"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
)

var _ = Describe("Writer.Record", func() {
	var (
		mockDB sqlmock.Sqlmock
		db     *sqlx.DB
		w      *audit.Writer
	)

	BeforeEach(func() {
		raw, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mockDB = m
		db = sqlx.NewDb(raw, "sqlmock")
		w = audit.New(db, discardLogger())
	})

	It("inserts one row per recorded event and never returns an error to the caller", func() {
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		user := "user-1"
		w.Record(context.Background(), model.OpCreate, "processing_jobs", "p1", &user, map[string]any{"k": "v"})

		Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	})

	It("swallows a failing insert rather than propagating it", func() {
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnError(context.DeadlineExceeded)

		Expect(func() {
			w.Record(context.Background(), model.OpDelete, "health_data", "m1", nil, nil)
		}).NotTo(Panic())
	})
})

var _ = Describe("Writer.Sweep", func() {
	It("deletes rows older than the retention ceiling", func() {
		raw, mockDB, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		db := sqlx.NewDb(raw, "sqlmock")
		w := audit.New(db, discardLogger())

		mockDB.ExpectExec("DELETE FROM audit_logs").WillReturnResult(sqlmock.NewResult(0, 5))

		n, err := w.Sweep(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(5)))
	})
})
