package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/messhall-api/internal/models"
	"github.com/noah-isme/messhall-api/internal/service"
)

type fakeStudents struct {
	student *models.Student
}

func (f *fakeStudents) FindByID(context.Context, string) (*models.Student, error) {
	return f.student, nil
}

func (f *fakeStudents) FindByUserID(context.Context, string) (*models.Student, error) {
	return f.student, nil
}

func (f *fakeStudents) ListActiveOn(context.Context, time.Time) ([]models.Student, error) {
	return nil, nil
}

type fakePlans struct {
	plan *models.Plan
}

func (f *fakePlans) FindByID(context.Context, string) (*models.Plan, error) {
	return f.plan, nil
}

func (f *fakePlans) All(context.Context) ([]models.Plan, error) {
	return nil, nil
}

type fakeRecords struct{}

func (f *fakeRecords) FindByStudentAndDate(context.Context, string, time.Time) (*models.AttendanceRecord, error) {
	return nil, nil
}

type fakeMarker struct {
	record *models.AttendanceRecord
}

func (f *fakeMarker) MarkMeal(_ context.Context, studentID string, date time.Time, meal models.Meal, present bool, _ models.MarkSource) (*models.AttendanceRecord, bool, error) {
	record := &models.AttendanceRecord{ID: "rec-1", StudentID: studentID, Date: date}
	switch meal {
	case models.MealBreakfast:
		record.Breakfast = present
	case models.MealLunch:
		record.Lunch = present
	case models.MealDinner:
		record.Dinner = present
	}
	f.record = record
	return record, true, nil
}

func newHandlerCheckIn(t *testing.T, at time.Time) *CheckInHandler {
	t.Helper()
	breakfast, err := models.NewMealWindow(models.MealBreakfast, "07:30", "10:30", 30)
	require.NoError(t, err)

	student := &models.Student{
		ID: "s1", UserID: "u1", PlanID: "full", Active: true,
		JoinDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:  time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	plan := &models.Plan{ID: "full", Meals: models.ParseMealSet("breakfast,lunch,dinner")}

	svc := service.NewCheckInService(
		&fakeStudents{student: student},
		&fakePlans{plan: plan},
		&fakeRecords{},
		&fakeMarker{},
		[]models.MealWindow{breakfast},
		[]string{"MESS_CHECKIN"},
		nil, zap.NewNop(),
		func() time.Time { return at },
	)
	return NewCheckInHandler(svc)
}

func performCheckIn(handler *CheckInHandler, body, userID string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/checkin", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != "" {
		c.Request.Header.Set("X-User-ID", userID)
	}
	handler.CheckIn(c)
	return rec
}

func TestCheckInHandlerRequiresIdentity(t *testing.T) {
	handler := newHandlerCheckIn(t, time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	rec := performCheckIn(handler, `{"qr_data":"MESS_CHECKIN"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckInHandlerRejectsMalformedBody(t *testing.T) {
	handler := newHandlerCheckIn(t, time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	rec := performCheckIn(handler, `{}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckInHandlerSuccess(t *testing.T) {
	handler := newHandlerCheckIn(t, time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	rec := performCheckIn(handler, `{"qr_data":"MESS_CHECKIN"}`, "u1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data models.CheckInResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, models.MealBreakfast, envelope.Data.Meal)
	assert.False(t, envelope.Data.AlreadyMarked)
	assert.True(t, envelope.Data.Record.Breakfast)
}

func TestCheckInHandlerForeignQR(t *testing.T) {
	handler := newHandlerCheckIn(t, time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC))

	rec := performCheckIn(handler, `{"qr_data":"https://evil.example.com/x"}`, "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_QR_CODE", envelope.Error.Code)
}

func TestCheckInHandlerOutsideWindow(t *testing.T) {
	handler := newHandlerCheckIn(t, time.Date(2026, 8, 25, 16, 0, 0, 0, time.UTC))

	rec := performCheckIn(handler, `{"qr_data":"MESS_CHECKIN"}`, "u1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
