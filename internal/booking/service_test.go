package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository. Seat accounting is mutex-guarded so it
// honors the same linearizability the conditional UPDATE gives the real one.
type fakeRepo struct {
	mu sync.Mutex

	doctors     map[uuid.UUID]bool
	assignments map[uuid.UUID]*SlotAssignment
	slots       map[uuid.UUID]SlotCandidate // static slot info per assignment
	guests      map[string]*Guest           // keyed by phone
	appts       map[uuid.UUID]*Appointment
	staff       []StaffMember
	rows        []Notification

	failCreateAppointment bool
	failRelease           bool
	failStaffLookup       bool
	guestUpserts          int
	doctorLookups         int

	// afterReserve runs under the lock right after a successful increment, so
	// tests can interleave other bookers' effects before the verify re-read.
	afterReserve func(a *SlotAssignment)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		doctors:     make(map[uuid.UUID]bool),
		assignments: make(map[uuid.UUID]*SlotAssignment),
		slots:       make(map[uuid.UUID]SlotCandidate),
		guests:      make(map[string]*Guest),
		appts:       make(map[uuid.UUID]*Appointment),
	}
}

func (f *fakeRepo) addAssignment(doctorID uuid.UUID, date, slotTime string, max int) uuid.UUID {
	f.doctors[doctorID] = true
	d, _ := time.Parse("2006-01-02", date)
	id := uuid.New()
	f.assignments[id] = &SlotAssignment{
		ID:              id,
		DoctorID:        doctorID,
		SlotID:          uuid.New(),
		MaxAppointments: max,
	}
	f.slots[id] = SlotCandidate{
		AssignmentID:    id,
		SlotID:          f.assignments[id].SlotID,
		SlotDate:        d,
		SlotTime:        slotTime,
		MaxAppointments: max,
	}
	return id
}

func (f *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doctorLookups++
	if !f.doctors[id] {
		return nil, ErrDoctorNotFound
	}
	return &Doctor{ID: id, FullName: "Dr. Test"}, nil
}

func (f *fakeRepo) ListAvailableSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]SlotCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []SlotCandidate
	for id, a := range f.assignments {
		if a.DoctorID != doctorID || a.AppointmentsCount >= a.MaxAppointments {
			continue
		}
		c := f.slots[id]
		if c.SlotDate.Before(from) || c.SlotDate.After(to) {
			continue
		}
		c.AppointmentsCount = a.AppointmentsCount
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) GetAssignmentByID(_ context.Context, id uuid.UUID) (*SlotAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ReserveSeat(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok {
		return 0, ErrAssignmentNotFound
	}
	if a.AppointmentsCount >= a.MaxAppointments {
		return 0, ErrSlotFull
	}
	a.AppointmentsCount++
	count := a.AppointmentsCount
	if f.afterReserve != nil {
		f.afterReserve(a)
	}
	return count, nil
}

func (f *fakeRepo) ReleaseSeat(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRelease {
		return 0, errors.New("release exploded")
	}
	a, ok := f.assignments[id]
	if !ok {
		return 0, ErrAssignmentNotFound
	}
	if a.AppointmentsCount <= 0 {
		return 0, ErrNoCapacityHeld
	}
	a.AppointmentsCount--
	return a.AppointmentsCount, nil
}

func (f *fakeRepo) GetOrCreateGuest(_ context.Context, fullName, phone string, email *string) (*Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guestUpserts++
	if g, ok := f.guests[phone]; ok {
		return g, nil
	}
	g := &Guest{ID: uuid.New(), FullName: fullName, Phone: phone, Email: email}
	f.guests[phone] = g
	return g, nil
}

func (f *fakeRepo) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateAppointment {
		return nil, errors.New("insert exploded")
	}
	a := &Appointment{
		ID:           uuid.New(),
		PatientID:    in.PatientID,
		GuestID:      in.GuestID,
		DoctorID:     in.DoctorID,
		AssignmentID: in.AssignmentID,
		Phone:        in.Phone,
		Email:        in.Email,
		VisitType:    in.VisitType,
		Schedule:     in.Schedule,
		Date:         in.Date,
		Time:         in.Time,
		Message:      in.Message,
		Status:       in.Status,
	}
	f.appts[a.ID] = a
	return a, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	return a, nil
}

func (f *fakeRepo) ListStaffCovering(_ context.Context, _ string) ([]StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStaffLookup {
		return nil, errors.New("staff lookup exploded")
	}
	return f.staff, nil
}

func (f *fakeRepo) InsertNotifications(_ context.Context, ns []Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, ns...)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	res   FanoutResult
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, _ *Appointment, staff []StaffMember) (FanoutResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.res.Attempted == 0 {
		return FanoutResult{Attempted: len(staff), Delivered: len(staff)}, n.err
	}
	return n.res, n.err
}

func newTestService(repo *fakeRepo, notifier Notifier) *Service {
	if notifier == nil {
		notifier = &fakeNotifier{}
	}
	return NewService(repo, notifier, 7, zerolog.Nop())
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
}

func guestBookRequest(doctorID, assignmentID uuid.UUID, date string) BookRequest {
	return BookRequest{
		DoctorID:        doctorID,
		Date:            date,
		Schedule:        BucketMorning,
		PreferredSlotID: &assignmentID,
		VisitType:       "consultation",
		FullName:        "Pat Caller",
		Phone:           "+8434567890",
	}
}

func TestBookHappyPathGuest(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 2)
	repo.staff = []StaffMember{
		{ID: uuid.New(), Role: "receptionist", WorkingEmail: "front@clinic.test"},
	}

	svc := newTestService(repo, nil)
	res, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))
	require.NoError(t, err)

	require.NotNil(t, res.Appointment)
	assert.Equal(t, StatusConfirmed, res.Appointment.Status)
	assert.Nil(t, res.Appointment.PatientID)
	require.NotNil(t, res.Appointment.GuestID)
	assert.Equal(t, assignmentID, res.Appointment.AssignmentID)
	assert.Equal(t, "09:00", res.Appointment.Time)

	assert.Equal(t, 1, repo.assignments[assignmentID].AppointmentsCount)
	assert.Equal(t, 1, res.Fanout.Attempted)
	assert.Equal(t, 1, res.Fanout.Delivered)
	assert.Equal(t, 1, repo.doctorLookups, "one doctor check per booking")
}

func TestBookPatientSkipsGuestResolution(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)

	patientID := uuid.New()
	req := guestBookRequest(doctorID, assignmentID, date)
	req.PatientID = &patientID

	svc := newTestService(repo, nil)
	res, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, &patientID, res.Appointment.PatientID)
	assert.Nil(t, res.Appointment.GuestID)
	assert.Zero(t, repo.guestUpserts)
}

func TestBookConcurrentCapacity(t *testing.T) {
	const capacity = 2
	const callers = 10

	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", capacity)

	svc := newTestService(repo, nil)

	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			req := guestBookRequest(doctorID, assignmentID, date)
			req.Phone = uuid.NewString() // distinct guests
			_, errs[n] = svc.Book(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotFull) || errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrNoAvailability):
			// Losers either hit the atomic check or saw the slot vanish from
			// the refreshed catalog.
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, capacity, won, "exactly capacity callers may win")
	assert.Equal(t, callers-capacity, lost)
	assert.Equal(t, capacity, repo.assignments[assignmentID].AppointmentsCount)
	assert.Len(t, repo.appts, capacity, "one appointment per successful reservation")
}

func TestBookSlotFullReturnsFreshCandidates(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)

	svc := newTestService(repo, nil)

	_, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))
	require.NoError(t, err)

	req := guestBookRequest(doctorID, assignmentID, date)
	req.Phone = "+8434567891"
	_, err = svc.Book(context.Background(), req)
	require.Error(t, err)

	// Full slots leave the catalog, so the loser sees either the stale-id
	// selection failure or SlotFull; both carry the now-empty candidate list.
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.Empty(t, selErr.Candidates)
	assert.Equal(t, 1, repo.assignments[assignmentID].AppointmentsCount)
}

func TestBookRecordFailureReleasesSeat(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)
	repo.failCreateAppointment = true

	svc := newTestService(repo, nil)
	_, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordingFailed)
	assert.Equal(t, 0, repo.assignments[assignmentID].AppointmentsCount,
		"reserved seat must be released when recording fails")
	assert.Empty(t, repo.appts)
}

func TestBookRecordAndReleaseFailureFlagsReconciliation(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)
	repo.failCreateAppointment = true
	repo.failRelease = true

	svc := newTestService(repo, nil)
	_, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReconcileRequired)
}

func TestBookToleratesConcurrentCompensatingRelease(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 2)

	// Another booker already holds the first seat. Right after this request's
	// increment lands, that booker's recording fails and its seat is released,
	// dropping the count below this request's increment result.
	repo.assignments[assignmentID].AppointmentsCount = 1
	var once sync.Once
	repo.afterReserve = func(a *SlotAssignment) {
		once.Do(func() { a.AppointmentsCount-- })
	}

	svc := newTestService(repo, nil)
	res, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))

	require.NoError(t, err, "a concurrent release is a legal state, not corruption")
	require.NotNil(t, res.Appointment)
	assert.Equal(t, 1, repo.assignments[assignmentID].AppointmentsCount)
}

func TestBookCounterAboveCapacityReleasesSeat(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 2)

	var once sync.Once
	repo.afterReserve = func(a *SlotAssignment) {
		once.Do(func() { a.AppointmentsCount = a.MaxAppointments + 1 })
	}

	svc := newTestService(repo, nil)
	_, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCounterCorrupt)
	assert.Equal(t, repo.assignments[assignmentID].MaxAppointments,
		repo.assignments[assignmentID].AppointmentsCount,
		"the failed request's own seat must still be given back")
	assert.Empty(t, repo.appts)
}

func TestBookGuestResolutionIdempotent(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	a1 := repo.addAssignment(doctorID, date, "09:00", 1)
	a2 := repo.addAssignment(doctorID, date, "10:00", 1)

	svc := newTestService(repo, nil)

	res1, err := svc.Book(context.Background(), guestBookRequest(doctorID, a1, date))
	require.NoError(t, err)
	res2, err := svc.Book(context.Background(), guestBookRequest(doctorID, a2, date))
	require.NoError(t, err)

	assert.Equal(t, 2, repo.guestUpserts)
	assert.Len(t, repo.guests, 1, "same phone must resolve to one guest row")
	assert.Equal(t, res1.Appointment.GuestID, res2.Appointment.GuestID)
}

func TestBookDoctorNotFound(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	req := guestBookRequest(uuid.New(), uuid.New(), tomorrow())
	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestBookInvalidDate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	req := guestBookRequest(uuid.New(), uuid.New(), "10-01-2025")
	_, err := svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestBookSurvivesStaffLookupFailure(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)
	repo.failStaffLookup = true

	svc := newTestService(repo, nil)
	res, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))

	require.NoError(t, err, "a booking that cannot notify staff is still a valid booking")
	assert.Zero(t, res.Fanout.Attempted)
	assert.Equal(t, 1, repo.assignments[assignmentID].AppointmentsCount)
}

func TestBookSurvivesNotifierFailure(t *testing.T) {
	repo := newFakeRepo()
	doctorID := uuid.New()
	date := tomorrow()
	assignmentID := repo.addAssignment(doctorID, date, "09:00", 1)
	repo.staff = []StaffMember{{ID: uuid.New(), Role: "doctor"}}

	notifier := &fakeNotifier{err: errors.New("channel down")}
	svc := newTestService(repo, notifier)

	res, err := svc.Book(context.Background(), guestBookRequest(doctorID, assignmentID, date))
	require.NoError(t, err)
	assert.NotNil(t, res.Appointment)
	assert.Equal(t, 1, notifier.calls)
}

func TestListAvailableSlotsUnknownDoctor(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	_, err := svc.ListAvailableSlots(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}
