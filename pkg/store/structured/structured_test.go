package structured_test

import (
	"context"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/clarity-digital-twin/clarity-backend/pkg/model"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/audit"
	"github.com/clarity-digital-twin/clarity-backend/pkg/store/structured"
)

func newTestStore() (*structured.Store, sqlmock.Sqlmock) {
	raw, mockDB, err := sqlmock.New()
	Expect(err).NotTo(HaveOccurred())
	db := sqlx.NewDb(raw, "sqlmock")
	cache := structured.NewCache(nil, time.Minute, false, discardLogger())
	auditWriter := audit.New(db, discardLogger())
	return structured.New(db, cache, auditWriter, discardLogger()), mockDB
}

var _ = Describe("Store health_data operations", func() {
	It("upserts a metric and records a CREATE audit event", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("INSERT INTO health_data").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		m := model.HealthMetric{MetricID: "m1", UserID: "u1", Type: model.MetricHeartRate, CreatedAt: time.Now().UTC()}
		Expect(store.PutHealthMetric(context.Background(), m)).To(Succeed())
		Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	})

	It("returns a typed not-found error when a metric is absent", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectQuery("SELECT user_id, id, metric_type, payload, created_at FROM health_data").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "id", "metric_type", "payload", "created_at"}))

		_, err := store.GetHealthMetric(context.Background(), "u1", "missing")
		Expect(err).To(HaveOccurred())
	})

	It("writes metrics in chunks of BatchSize with a retry policy", func() {
		store, mockDB := newTestStore()
		metrics := make([]model.HealthMetric, structured.BatchSize+1)
		for i := range metrics {
			metrics[i] = model.HealthMetric{MetricID: "m", UserID: "u1", Type: model.MetricStepCount, CreatedAt: time.Now().UTC()}
		}

		mockDB.ExpectBegin()
		for i := 0; i < structured.BatchSize; i++ {
			mockDB.ExpectExec("INSERT INTO health_data").WillReturnResult(sqlmock.NewResult(1, 1))
		}
		mockDB.ExpectCommit()
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		mockDB.ExpectBegin()
		mockDB.ExpectExec("INSERT INTO health_data").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectCommit()
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		Expect(store.BatchWriteHealthMetrics(context.Background(), metrics)).To(Succeed())
	})
})

var _ = Describe("Store processing_jobs operations", func() {
	It("creates a job and records a CREATE audit event", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("INSERT INTO processing_jobs").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		job := model.ProcessingJob{ProcessingID: "p1", UserID: "u1", Status: model.JobReceived, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC()}
		Expect(store.PutJob(context.Background(), job)).To(Succeed())
	})

	It("applies a status CAS transition only when the current status matches", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("UPDATE processing_jobs").WillReturnResult(sqlmock.NewResult(0, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		applied, err := store.UpdateJobStatus(context.Background(), "p1", model.JobReceived, model.JobProcessing, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())
	})

	It("reports a missed CAS as applied=false, not an error", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("UPDATE processing_jobs").WillReturnResult(sqlmock.NewResult(0, 0))

		applied, err := store.UpdateJobStatus(context.Background(), "p1", model.JobReceived, model.JobProcessing, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeFalse())
	})
})

var _ = Describe("Store analysis_results operations", func() {
	It("upserts the single result for a processing_id", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("INSERT INTO analysis_results").WillReturnResult(sqlmock.NewResult(1, 1))
		mockDB.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

		result := model.AnalysisResult{ProcessingID: "p1", UserID: "u1", Timestamp: time.Now().UTC(), FusedVector: []float64{0.1, 0.2}}
		Expect(store.PutAnalysisResult(context.Background(), result)).To(Succeed())
	})
})

var _ = Describe("Store.DeleteUserData", func() {
	It("sums deleted rows across all three tables and emits no audit event itself", func() {
		store, mockDB := newTestStore()
		mockDB.ExpectExec("DELETE FROM health_data").WillReturnResult(sqlmock.NewResult(0, 3))
		mockDB.ExpectExec("DELETE FROM processing_jobs").WillReturnResult(sqlmock.NewResult(0, 2))
		mockDB.ExpectExec("DELETE FROM analysis_results").WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := store.DeleteUserData(context.Background(), "u1")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(6)))
		Expect(mockDB.ExpectationsWereMet()).To(Succeed())
	})
})
