package settlement

import (
	"context"
	"testing"

	"github.com/edusoko/course_market/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Teacher{},
		&models.Course{},
		&models.Enrollment{},
		&models.Payment{},
		&models.Transaction{},
		&models.PayoutSummary{},
	))
	return db
}

type fixture struct {
	student models.User
	teacher models.Teacher
	course  models.Course
}

func seedSale(t *testing.T, db *gorm.DB) fixture {
	t.Helper()

	student := models.User{ID: uuid.New(), FullName: "Amina Student", Email: uuid.New().String() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(&student).Error)

	teacherUser := models.User{ID: uuid.New(), FullName: "Tobias Teacher", Email: uuid.New().String() + "@example.com", Password: "x", Role: "teacher"}
	require.NoError(t, db.Create(&teacherUser).Error)

	teacher := models.Teacher{UserID: teacherUser.ID, Status: "active"}
	require.NoError(t, db.Create(&teacher).Error)

	course := models.Course{ID: uuid.New(), TeacherID: teacherUser.ID, Title: "Intro to Gardening", Price: 100, Currency: "USD", IsActive: true}
	require.NoError(t, db.Create(&course).Error)

	return fixture{student: student, teacher: teacher, course: course}
}

func newTestProcessor(db *gorm.DB) *Processor {
	return &Processor{
		DB:            db,
		FeePercent:    30,
		Bounds:        SplitBounds{MinCents: 100, MaxCents: 1000000},
		RetryAttempts: 1,
	}
}

func saleEvent(f fixture) *CheckoutEventData {
	return &CheckoutEventData{
		EventID:         "evt_" + uuid.New().String(),
		StudentID:       f.student.ID,
		CourseID:        f.course.ID,
		TeacherID:       f.teacher.UserID,
		AmountCents:     10000,
		Amount:          100,
		Currency:        "usd",
		GatewayRef:      "cs_" + uuid.New().String(),
		PaymentIntentID: "pi_" + uuid.New().String(),
		PaymentStatus:   "paid",
		CustomerEmail:   "buyer@example.com",
	}
}

func TestSettle_FullFlow(t *testing.T) {
	db := newTestDB(t, "settle_full")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	res, err := p.Settle(context.Background(), saleEvent(f))
	require.NoError(t, err)
	assert.False(t, res.AlreadyEnrolled)

	var payment models.Payment
	require.NoError(t, db.First(&payment, "student_id = ?", f.student.ID).Error)
	assert.Equal(t, 100.0, payment.Amount)
	assert.Equal(t, 70.0, payment.TeacherShare)
	assert.Equal(t, 30.0, payment.PlatformShare)
	assert.Equal(t, "success", payment.Status)
	assert.Equal(t, "USD", payment.Currency)

	var txn models.Transaction
	require.NoError(t, db.First(&txn, "teacher_id = ?", f.teacher.UserID).Error)
	assert.Equal(t, 70.0, txn.TeacherEarning)
	assert.Equal(t, 30.0, txn.PlatformEarning)
	assert.Equal(t, "pending", txn.TransferStatus)
	assert.Nil(t, txn.PayoutID)

	var enrolled int64
	db.Model(&models.Enrollment{}).Where("user_id = ? AND course_id = ?", f.student.ID, f.course.ID).Count(&enrolled)
	assert.Equal(t, int64(1), enrolled)

	var course models.Course
	require.NoError(t, db.First(&course, "id = ?", f.course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)

	var teacher models.Teacher
	require.NoError(t, db.First(&teacher, "user_id = ?", f.teacher.UserID).Error)
	assert.Equal(t, 70.0, teacher.TotalEarnings)
	assert.Equal(t, 70.0, teacher.MonthlyEarnings)
	assert.Len(t, teacher.TransactionIDs, 1)
	assert.Equal(t, txn.ID.String(), teacher.TransactionIDs[0])

	var summary models.PayoutSummary
	require.NoError(t, db.First(&summary, "teacher_id = ?", f.teacher.UserID).Error)
	assert.Equal(t, 70.0, summary.TotalEarned)
	require.Len(t, summary.CourseEarnings, 1)
	assert.Equal(t, f.course.ID.String(), summary.CourseEarnings[0].CourseID)
	assert.Equal(t, 1, summary.CourseEarnings[0].Count)
}

func TestSettle_IdempotentReplay(t *testing.T) {
	db := newTestDB(t, "settle_replay")
	f := seedSale(t, db)
	p := newTestProcessor(db)
	ev := saleEvent(f)

	res, err := p.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, res.AlreadyEnrolled)

	// Redeliveries of the same event must be no-ops.
	for i := 0; i < 3; i++ {
		res, err = p.Settle(context.Background(), ev)
		require.NoError(t, err)
		assert.True(t, res.AlreadyEnrolled)
	}

	var payments, txns, enrollments int64
	db.Model(&models.Payment{}).Count(&payments)
	db.Model(&models.Transaction{}).Count(&txns)
	db.Model(&models.Enrollment{}).Count(&enrollments)
	assert.Equal(t, int64(1), payments)
	assert.Equal(t, int64(1), txns)
	assert.Equal(t, int64(1), enrollments)

	var teacher models.Teacher
	require.NoError(t, db.First(&teacher, "user_id = ?", f.teacher.UserID).Error)
	assert.Equal(t, 70.0, teacher.TotalEarnings)

	var course models.Course
	require.NoError(t, db.First(&course, "id = ?", f.course.ID).Error)
	assert.Equal(t, 1, course.EnrollmentCount)
}

func TestSettle_AtomicOnFailure(t *testing.T) {
	db := newTestDB(t, "settle_atomic")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	// Force the last write of the settlement transaction to fail; nothing
	// from the earlier steps may survive.
	require.NoError(t, db.Exec(
		`CREATE TRIGGER fail_teacher_update BEFORE UPDATE ON teachers
		 BEGIN SELECT RAISE(ABORT, 'injected failure'); END;`).Error)

	_, err := p.Settle(context.Background(), saleEvent(f))
	require.Error(t, err)

	var payments, txns, enrollments, summaries int64
	db.Model(&models.Payment{}).Count(&payments)
	db.Model(&models.Transaction{}).Count(&txns)
	db.Model(&models.Enrollment{}).Count(&enrollments)
	db.Model(&models.PayoutSummary{}).Count(&summaries)
	assert.Zero(t, payments)
	assert.Zero(t, txns)
	assert.Zero(t, enrollments)
	assert.Zero(t, summaries)

	var course models.Course
	require.NoError(t, db.First(&course, "id = ?", f.course.ID).Error)
	assert.Equal(t, 0, course.EnrollmentCount)

	// Clearing the fault lets the same event settle normally.
	require.NoError(t, db.Exec(`DROP TRIGGER fail_teacher_update`).Error)
	res, err := p.Settle(context.Background(), saleEvent(f))
	require.NoError(t, err)
	assert.False(t, res.AlreadyEnrolled)
}

func TestSettle_UnknownCourse(t *testing.T) {
	db := newTestDB(t, "settle_missing")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	ev := saleEvent(f)
	ev.CourseID = uuid.New()

	_, err := p.Settle(context.Background(), ev)
	require.Error(t, err)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "course", nf.Entity)

	var payments int64
	db.Model(&models.Payment{}).Count(&payments)
	assert.Zero(t, payments)
}

func TestSettle_AmountOutOfBounds(t *testing.T) {
	db := newTestDB(t, "settle_bounds")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	ev := saleEvent(f)
	ev.AmountCents = 50

	_, err := p.Settle(context.Background(), ev)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettle_AsyncPaymentStaysPending(t *testing.T) {
	db := newTestDB(t, "settle_async")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	ev := saleEvent(f)
	ev.PaymentStatus = "unpaid"

	_, err := p.Settle(context.Background(), ev)
	require.NoError(t, err)

	var payment models.Payment
	require.NoError(t, db.First(&payment, "student_id = ?", f.student.ID).Error)
	assert.Equal(t, "pending", payment.Status)
}

func TestSettle_SummaryAggregatesAcrossSales(t *testing.T) {
	db := newTestDB(t, "settle_summary")
	f := seedSale(t, db)
	p := newTestProcessor(db)

	second := models.User{ID: uuid.New(), FullName: "Second Student", Email: uuid.New().String() + "@example.com", Password: "x"}
	require.NoError(t, db.Create(&second).Error)

	_, err := p.Settle(context.Background(), saleEvent(f))
	require.NoError(t, err)

	ev2 := saleEvent(f)
	ev2.StudentID = second.ID
	_, err = p.Settle(context.Background(), ev2)
	require.NoError(t, err)

	var summaries []models.PayoutSummary
	require.NoError(t, db.Where("teacher_id = ?", f.teacher.UserID).Find(&summaries).Error)
	require.Len(t, summaries, 1)
	assert.Equal(t, 140.0, summaries[0].TotalEarned)
	assert.Len(t, summaries[0].TransactionIDs, 2)
	require.Len(t, summaries[0].CourseEarnings, 1)
	assert.Equal(t, 2, summaries[0].CourseEarnings[0].Count)
	assert.Equal(t, 140.0, summaries[0].CourseEarnings[0].Earnings)

	// Counters are maintained with SQL-side increments, so both sales land
	// even when settlements interleave.
	var teacher models.Teacher
	require.NoError(t, db.First(&teacher, "user_id = ?", f.teacher.UserID).Error)
	assert.Equal(t, 140.0, teacher.TotalEarnings)
	assert.Equal(t, 140.0, teacher.WeeklyEarnings)
	assert.Equal(t, 140.0, teacher.MonthlyEarnings)
	assert.Equal(t, 140.0, teacher.YearlyEarnings)
	assert.Len(t, teacher.TransactionIDs, 2)
}
