package ranking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Signal windows. Erg tests older than 90 days and attendance records
// older than 30 days do not count toward the current ranking.
const (
	ErgWindow        = 90 * 24 * time.Hour
	AttendanceWindow = 30 * 24 * time.Hour
)

// Attendance statuses. Present and late both count as attended.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
	StatusExcused = "excused"
)

// ergTypeImportance weights each erg test type's contribution to the
// erg signal. A 2k is the benchmark piece; steady state barely counts.
var ergTypeImportance = map[string]float64{
	"2k":           1.0,
	"6k":           0.8,
	"500m":         0.6,
	"steady_state": 0.3,
}

const defaultErgImportance = 0.5

// ErgImportance returns the importance factor for an erg test type.
// Unknown types get a middling factor rather than being dropped.
func ErgImportance(testType string) float64 {
	if imp, ok := ergTypeImportance[testType]; ok {
		return imp
	}
	return defaultErgImportance
}

// ErgTest is one recorded erg result.
type ErgTest struct {
	AthleteID   string    `json:"athlete_id"`
	TeamID      string    `json:"team_id"`
	TestType    string    `json:"test_type"`
	TimeSeconds float64   `json:"time_seconds"`
	TestDate    time.Time `json:"test_date"`
}

// Speed returns the test's pace signal in meters per second terms
// (1000 / time). Faster tests score higher.
func (t ErgTest) Speed() float64 {
	if t.TimeSeconds <= 0 {
		return 0
	}
	return 1000.0 / t.TimeSeconds
}

// AttendanceRecord is one practice attendance entry.
type AttendanceRecord struct {
	AthleteID string    `json:"athlete_id"`
	TeamID    string    `json:"team_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
}

// Attended reports whether the record counts as showing up.
func (r AttendanceRecord) Attended() bool {
	return r.Status == StatusPresent || r.Status == StatusLate
}

// ErgSource provides erg tests recorded on or after the cutoff.
type ErgSource interface {
	ErgTests(ctx context.Context, teamID string, since time.Time) ([]ErgTest, error)
}

// AttendanceSource provides attendance records on or after the cutoff.
type AttendanceSource interface {
	AttendanceRecords(ctx context.Context, teamID string, since time.Time) ([]AttendanceRecord, error)
}

// ErgScore aggregates an athlete's erg tests into a single raw score:
// the importance-weighted average of each test's speed. Returns the
// score and the number of tests used.
func ErgScore(tests []ErgTest) (float64, int) {
	if len(tests) == 0 {
		return 0, 0
	}
	var weightedSum, importanceSum float64
	for _, test := range tests {
		imp := ErgImportance(test.TestType)
		weightedSum += test.Speed() * imp
		importanceSum += imp
	}
	if importanceSum == 0 {
		return 0, len(tests)
	}
	return weightedSum / importanceSum, len(tests)
}

// AttendanceRate aggregates attendance records into a [0, 1] rate:
// (present + late) / total. Returns the rate and the record count.
func AttendanceRate(records []AttendanceRecord) (float64, int) {
	if len(records) == 0 {
		return 0, 0
	}
	attended := 0
	for _, r := range records {
		if r.Attended() {
			attended++
		}
	}
	return float64(attended) / float64(len(records)), len(records)
}

// InMemoryErgStore implements ErgSource with in-memory storage.
type InMemoryErgStore struct {
	mu    sync.RWMutex
	tests []ErgTest
}

// NewInMemoryErgStore creates a new in-memory erg test store.
func NewInMemoryErgStore() *InMemoryErgStore {
	return &InMemoryErgStore{}
}

// Add records an erg test.
func (s *InMemoryErgStore) Add(test ErgTest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests = append(s.tests, test)
}

// ErgTests returns the team's tests on or after the cutoff, sorted by
// test date.
func (s *InMemoryErgStore) ErgTests(ctx context.Context, teamID string, since time.Time) ([]ErgTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ErgTest
	for _, t := range s.tests {
		if t.TeamID == teamID && !t.TestDate.Before(since) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TestDate.Before(result[j].TestDate) })
	return result, nil
}

// InMemoryAttendanceStore implements AttendanceSource with in-memory
// storage.
type InMemoryAttendanceStore struct {
	mu      sync.RWMutex
	records []AttendanceRecord
}

// NewInMemoryAttendanceStore creates a new in-memory attendance store.
func NewInMemoryAttendanceStore() *InMemoryAttendanceStore {
	return &InMemoryAttendanceStore{}
}

// Add records an attendance entry.
func (s *InMemoryAttendanceStore) Add(record AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// AttendanceRecords returns the team's records on or after the cutoff,
// sorted by date.
func (s *InMemoryAttendanceStore) AttendanceRecords(ctx context.Context, teamID string, since time.Time) ([]AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []AttendanceRecord
	for _, r := range s.records {
		if r.TeamID == teamID && !r.Date.Before(since) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}
