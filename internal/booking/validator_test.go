package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNow puts the booking window at 2026-01-15 .. 2026-04-15.
var testNow = time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

func testValidator(t *testing.T, now func() time.Time) *Validator {
	t.Helper()
	if now == nil {
		now = func() time.Time { return testNow }
	}
	v, err := NewValidator(Rules{
		Catalog:    config.DefaultCatalog,
		OpenAt:     "09:00",
		CloseAt:    "18:00",
		WindowDays: 90,
		Location:   time.UTC,
		Now:        now,
	})
	require.NoError(t, err)
	return v
}

func requireReason(t *testing.T, err error, want Reason) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	assert.Equal(t, want, verr.Reason)
	return verr
}

func TestValidate_DateWindow(t *testing.T) {
	v := testValidator(t, nil)

	got, err := v.Validate(FieldDate, "2026-01-15")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-15", got)

	got, err = v.Validate(FieldDate, "2026-04-15")
	require.NoError(t, err)
	assert.Equal(t, "2026-04-15", got)

	_, err = v.Validate(FieldDate, "2026-01-14")
	verr := requireReason(t, err, ReasonDatePast)
	assert.Contains(t, verr.Message, "cannot be in the past")
	assert.Contains(t, verr.Message, "The date 2026-01-14 has already passed.")
	assert.True(t, verr.OutOfRange())

	_, err = v.Validate(FieldDate, "2026-04-16")
	verr = requireReason(t, err, ReasonDateTooFar)
	assert.Contains(t, verr.Message, "up to 90 days in advance")
	assert.Contains(t, verr.Message, "The date 2026-04-16 is beyond our booking window.")
}

func TestValidate_DateFormat(t *testing.T) {
	v := testValidator(t, nil)
	for _, raw := range []string{"15/01/2026", "2026-13-01", "tomorrow", "2026-1-5"} {
		_, err := v.Validate(FieldDate, raw)
		verr := requireReason(t, err, ReasonFormat)
		assert.Equal(t, "Please provide date in YYYY-MM-DD format.", verr.Message)
		assert.False(t, verr.OutOfRange())
	}
}

func TestValidate_DateUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on the 14th is already the 15th in Tokyo.
	v, err := NewValidator(Rules{
		Catalog:  config.DefaultCatalog,
		Location: tokyo,
		Now:      func() time.Time { return time.Date(2026, 1, 14, 20, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	from, to := v.Window()
	assert.Equal(t, "2026-01-15", from)
	assert.Equal(t, "2026-04-15", to)
	_, err = v.Validate(FieldDate, "2026-01-14")
	requireReason(t, err, ReasonDatePast)
}

func TestValidate_TimeWindow(t *testing.T) {
	v := testValidator(t, nil)

	for _, ok := range []string{"09:00", "18:00", "12:30"} {
		got, err := v.Validate(FieldTime, ok)
		require.NoError(t, err, ok)
		assert.Equal(t, ok, got)
	}

	for _, bad := range []string{"08:59", "18:01", "23:00"} {
		_, err := v.Validate(FieldTime, bad)
		verr := requireReason(t, err, ReasonOutsideHours)
		assert.Equal(t, "Please select a time between 09:00 and 18:00.", verr.Message)
	}

	got, err := v.Validate(FieldTime, "9:30")
	require.NoError(t, err)
	assert.Equal(t, "09:30", got)

	_, err = v.Validate(FieldTime, "25:00")
	verr := requireReason(t, err, ReasonFormat)
	assert.Equal(t, "Please provide time in HH:MM format (e.g., 14:30).", verr.Message)
}

func TestValidate_Phone(t *testing.T) {
	v := testValidator(t, nil)

	got, err := v.Validate(FieldPhone, "+1 (555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got)

	got, err = v.Validate(FieldPhone, "(555) 123-4567")
	require.NoError(t, err)
	assert.Equal(t, "5551234567", got)

	_, err = v.Validate(FieldPhone, "555-1234")
	verr := requireReason(t, err, ReasonTooShort)
	assert.Equal(t, "Please provide a valid phone number (at least 10 digits).", verr.Message)
}

func TestValidate_Email(t *testing.T) {
	v := testValidator(t, nil)

	got, err := v.Validate(FieldEmail, " Jane.Doe@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", got)

	for _, bad := range []string{"jane@", "jane.example.com", "jane@example", "jane doe@example.com"} {
		_, err := v.Validate(FieldEmail, bad)
		verr := requireReason(t, err, ReasonFormat)
		assert.Equal(t, "Please provide a valid email address.", verr.Message)
	}
}

func TestValidate_BookingType(t *testing.T) {
	v := testValidator(t, nil)

	tests := []struct {
		raw  string
		want string
	}{
		{"dental", "Dental"},
		{"CARDIOLOGY", "Cardiology"},
		{"cardio", "Cardiology"},
		{"consultation", "General Consultation"},
		{"  Pediatrics ", "Pediatrics"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := v.Validate(FieldBookingType, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := v.Validate(FieldBookingType, "Neurology")
	verr := requireReason(t, err, ReasonNotInCatalog)
	assert.Contains(t, verr.Message, "Dental")
}

func TestValidate_Name(t *testing.T) {
	v := testValidator(t, nil)

	got, err := v.Validate(FieldName, "  mary-jane o'brien ")
	require.NoError(t, err)
	assert.Equal(t, "Mary-Jane O'Brien", got)

	got, err = v.Validate(FieldName, "JANE DOE")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got)

	_, err = v.Validate(FieldName, "   ")
	requireReason(t, err, ReasonEmpty)
}

func TestValidateAll_FirstFailureInSchemaOrder(t *testing.T) {
	v := testValidator(t, nil)

	err := v.ValidateAll(map[Field]string{
		FieldName:  "Jane Doe",
		FieldPhone: "123",
		FieldTime:  "07:00",
	})
	verr := requireReason(t, err, ReasonTooShort)
	assert.Equal(t, FieldPhone, verr.Field)

	assert.NoError(t, v.ValidateAll(map[Field]string{
		FieldName:  "Jane Doe",
		FieldEmail: "jane@example.com",
	}))
}

func TestNewValidator_Errors(t *testing.T) {
	_, err := NewValidator(Rules{})
	assert.Error(t, err)

	_, err = NewValidator(Rules{Catalog: []string{"Dental"}, OpenAt: "9am"})
	assert.Error(t, err)

	_, err = NewValidator(Rules{Catalog: []string{"Dental"}, OpenAt: "18:00", CloseAt: "09:00"})
	assert.Error(t, err)
}

func TestNewValidator_Defaults(t *testing.T) {
	v, err := NewValidator(Rules{Catalog: []string{"Dental"}})
	require.NoError(t, err)
	open, closing := v.Hours()
	assert.Equal(t, "09:00", open)
	assert.Equal(t, "18:00", closing)
	assert.Equal(t, 90, v.WindowDays())
}

func TestRulesFromConfig(t *testing.T) {
	cfg := config.Defaults().Booking
	cfg.Timezone = "Europe/Berlin"

	rules, err := RulesFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", rules.Location.String())
	assert.Equal(t, "09:00", rules.OpenAt)
	assert.Equal(t, 90, rules.WindowDays)

	cfg.Timezone = "Nowhere/City"
	_, err = RulesFromConfig(cfg)
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	c := Catalog(config.DefaultCatalog)

	entry, ok := c.Find("I think I need a DENTAL cleaning")
	require.True(t, ok)
	assert.Equal(t, "Dental", entry)

	_, ok = c.Find("just a checkup")
	assert.False(t, ok)

	_, ok = c.Match("")
	assert.False(t, ok)

	assert.Equal(t, "General Consultation, Pediatrics, Cardiology, Dermatology, Orthopedics, Dental", c.String())
}
