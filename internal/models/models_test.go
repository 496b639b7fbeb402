package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    DayMonth
		wantErr bool
	}{
		{"5.3", DayMonth{5, time.March}, false},
		{"05.03", DayMonth{5, time.March}, false},
		{" 31.12 ", DayMonth{31, time.December}, false},
		{"29.2", DayMonth{29, time.February}, false},
		{"30.2", DayMonth{}, true},
		{"31.4", DayMonth{}, true},
		{"0.1", DayMonth{}, true},
		{"1.13", DayMonth{}, true},
		{"03-05", DayMonth{}, true},
		{"", DayMonth{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDayMonth(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadBirthday)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDayMonth_OccursLeapDay(t *testing.T) {
	leap := DayMonth{29, time.February}
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), leap.Occurs(2028, time.UTC))
	assert.Equal(t, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC), leap.Occurs(2027, time.UTC))
}

func TestRecordRoundTrip(t *testing.T) {
	entries := []RosterEntry{
		{ID: 1, Name: "Anna", LastName: "Petrova", Birthday: DayMonth{5, time.March}, Status: StatusActive, Username: "anna", HasOptedIn: true},
		{Name: "Boris", Birthday: DayMonth{1, time.January}, Status: StatusFormer},
		{ID: 42, Name: "Vera Ivanovna", Birthday: DayMonth{29, time.February}, Status: StatusActive},
		{Name: "Gleb", LastName: "S", Birthday: DayMonth{31, time.December}, Status: StatusFormer, Username: "gleb_s"},
	}
	for _, e := range entries {
		t.Run(e.Name, func(t *testing.T) {
			back, err := FromRecord(e.ToRecord())
			require.NoError(t, err)
			assert.Equal(t, e, back)
		})
	}
}

func TestFromRecord_Normalises(t *testing.T) {
	id := int64(7)
	e, err := FromRecord(Record{UserID: &id, Name: " Ivan ", Birthday: "7.7", Status: "-", Username: "@ivan"})
	require.NoError(t, err)
	assert.Equal(t, "Ivan", e.Name)
	assert.Equal(t, "ivan", e.Username)
	assert.Equal(t, StatusFormer, e.Status)
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, "-", e.ToRecord().Status)
}

func TestFromRecord_Rejects(t *testing.T) {
	_, err := FromRecord(Record{Name: "X", Birthday: "30.2"})
	assert.ErrorIs(t, err, ErrBadBirthday)

	_, err = FromRecord(Record{Birthday: "1.1"})
	assert.Error(t, err)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Vera", RosterEntry{Name: "Vera Ivanovna"}.FirstName())
	assert.Equal(t, "", RosterEntry{}.FirstName())
}
