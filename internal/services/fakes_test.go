package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/database"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/rideshare/seat-booking-backend/pkg/events"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory stand-in for the Postgres repositories with
// the same conditional update semantics
type memoryStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*models.Schedule
	bookings  map[uuid.UUID]*models.Booking
	routes    map[uuid.UUID]*models.Route
	cars      map[uuid.UUID]*models.Car
	deleted   []uuid.UUID

	// beforeReserve runs between the caller's checks and the conditional update
	beforeReserve func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		schedules: map[uuid.UUID]*models.Schedule{},
		bookings:  map[uuid.UUID]*models.Booking{},
		routes:    map[uuid.UUID]*models.Route{},
		cars:      map[uuid.UUID]*models.Car{},
	}
}

func copySchedule(s *models.Schedule) *models.Schedule {
	c := *s
	c.SeatLayout = append([]models.Seat(nil), s.SeatLayout...)
	return &c
}

func copyBooking(b *models.Booking) *models.Booking {
	c := *b
	c.Passengers = append(models.Passengers(nil), b.Passengers...)
	c.SelectedSeats = append(models.SeatNumbers(nil), b.SelectedSeats...)
	return &c
}

func (m *memoryStore) GetScheduleByID(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	c := copySchedule(s)
	c.SeatLayout = nil
	return c, nil
}

func (m *memoryStore) GetScheduleWithSeats(ctx context.Context, id uuid.UUID) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

func (m *memoryStore) ReserveSeats(ctx context.Context, booking *models.Booking) error {
	if m.beforeReserve != nil {
		m.beforeReserve()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[*booking.ScheduleID]
	if !ok || s.Status != models.ScheduleStatusActive || s.AvailableSeats < len(booking.SelectedSeats) {
		return database.ErrSeatsUnavailable
	}
	index := map[string]int{}
	for i, seat := range s.SeatLayout {
		index[seat.SeatNumber] = i
	}
	for _, number := range booking.SelectedSeats {
		i, ok := index[number]
		if !ok || s.SeatLayout[i].IsBooked {
			return database.ErrSeatsUnavailable
		}
	}

	id := booking.ID
	for _, number := range booking.SelectedSeats {
		seat := &s.SeatLayout[index[number]]
		seat.IsBooked = true
		seat.BookingID = &id
	}
	s.AvailableSeats -= len(booking.SelectedSeats)
	m.bookings[booking.ID] = copyBooking(booking)
	return nil
}

func (m *memoryStore) releaseSeats(b *models.Booking) {
	if b.ScheduleID == nil {
		return
	}
	s, ok := m.schedules[*b.ScheduleID]
	if !ok {
		return
	}
	for i := range s.SeatLayout {
		seat := &s.SeatLayout[i]
		if seat.IsBooked && seat.BookingID != nil && *seat.BookingID == b.ID {
			seat.IsBooked = false
			seat.BookingID = nil
			s.AvailableSeats++
		}
	}
}

func (m *memoryStore) ReleaseBookingSeats(ctx context.Context, bookingID uuid.UUID, tr models.BookingTransition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, from := range tr.From {
		if b.Status == from {
			allowed = true
		}
	}
	if !allowed || (tr.RequireExpiry && !b.PaymentTimeout.Before(tr.Now)) {
		return false, nil
	}

	b.Status = tr.To
	if tr.PaymentStatus != "" {
		b.PaymentStatus = tr.PaymentStatus
	}
	if tr.CancelledBy != nil {
		b.CancelledBy = tr.CancelledBy
	}
	m.releaseSeats(b)
	return true, nil
}

func (m *memoryStore) DeleteReservation(ctx context.Context, bookingID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[bookingID]
	if !ok {
		return nil
	}
	m.releaseSeats(b)
	delete(m.bookings, bookingID)
	m.deleted = append(m.deleted, bookingID)
	return nil
}

func (m *memoryStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	return copyBooking(b), nil
}

func (m *memoryStore) GetBookingByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.GatewayOrderID != nil && *b.GatewayOrderID == orderID {
			return copyBooking(b), nil
		}
	}
	return nil, nil
}

func (m *memoryStore) SetGatewayOrder(ctx context.Context, id uuid.UUID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return fmt.Errorf("booking %s is not pending", id)
	}
	b.GatewayOrderID = &orderID
	return nil
}

func (m *memoryStore) ConfirmPayment(ctx context.Context, id uuid.UUID, conf models.PaymentConfirmation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusPending || conf.PaidAt.After(b.PaymentTimeout) {
		return false, nil
	}
	paidAt := conf.PaidAt
	paymentID := conf.PaymentID
	b.Status = models.BookingStatusConfirmed
	b.PaymentStatus = models.PaymentStatusPartiallyPaid
	b.PaidAmount = conf.PaidAmount
	b.RemainingAmount = b.TotalAmount - conf.PaidAmount
	b.PaymentDate = &paidAt
	b.GatewayPaymentID = &paymentID
	return true, nil
}

func (m *memoryStore) ListTimedOutPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, b := range m.bookings {
		if b.Status == models.BookingStatusPending && b.PaymentTimeout.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memoryStore) ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, *copyBooking(b))
		}
	}
	return out, nil
}

func (m *memoryStore) ListBookingsByAdmin(ctx context.Context, adminID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if r, ok := m.routes[b.RouteID]; ok && r.AdminID == adminID {
			out = append(out, *copyBooking(b))
		}
	}
	return out, nil
}

func (m *memoryStore) countActive(scheduleID uuid.UUID) int {
	n := 0
	for _, b := range m.bookings {
		if b.ScheduleID != nil && *b.ScheduleID == scheduleID &&
			(b.Status == models.BookingStatusPending || b.Status == models.BookingStatusConfirmed) {
			n++
		}
	}
	return n
}

func (m *memoryStore) GetRouteByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *memoryStore) GetCarByID(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cars[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) CreateCar(ctx context.Context, car *models.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *car
	m.cars[car.ID] = &c
	return nil
}

func (m *memoryStore) ListCarsByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Car
	for _, c := range m.cars {
		if c.AdminID == adminID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateRoute(ctx context.Context, route *models.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *route
	m.routes[route.ID] = &r
	return nil
}

func (m *memoryStore) ListRoutesByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Route
	for _, r := range m.routes {
		if r.AdminID == adminID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryStore) ListSchedulesByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Schedule
	for _, s := range m.schedules {
		if s.RouteID == routeID {
			out = append(out, *copySchedule(s))
		}
	}
	return out, nil
}

func (m *memoryStore) FindExistingDates(ctx context.Context, routeID uuid.UUID, dates []time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, d := range dates {
		for _, s := range m.schedules {
			if s.RouteID == routeID && s.Date.Format("2006-01-02") == d.Format("2006-01-02") {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

func (m *memoryStore) CreateSchedules(ctx context.Context, schedules []*models.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range schedules {
		s.AvailableSeats = s.TotalSeats
		s.SeatLayout = models.BuildSeatLayout(s.TotalSeats)
		m.schedules[s.ID] = copySchedule(s)
	}
	return nil
}

func (m *memoryStore) UpdateSchedule(ctx context.Context, id uuid.UUID, req *models.UpdateScheduleRequest) (*models.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, models.NewNotFoundError("schedule", id.String())
	}
	if req.PricePerSeat != nil {
		s.PricePerSeat = *req.PricePerSeat
	}
	if req.Status != nil {
		s.Status = *req.Status
	}
	if req.StartTime != nil {
		s.StartTime = *req.StartTime
	}
	return copySchedule(s), nil
}

func (m *memoryStore) DeleteScheduleWithSnapshot(ctx context.Context, schedule *models.Schedule, deletedAt time.Time, refuseActive bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[schedule.ID]; !ok {
		return 0, models.NewNotFoundError("schedule", schedule.ID.String())
	}
	if refuseActive {
		if active := m.countActive(schedule.ID); active > 0 {
			return 0, models.NewValidationError("schedule",
				fmt.Sprintf("cannot delete an upcoming schedule with %d active bookings", active))
		}
	}
	var n int64
	for _, b := range m.bookings {
		if b.ScheduleID != nil && *b.ScheduleID == schedule.ID {
			b.ScheduleID = nil
			b.ScheduleDeleted = true
			b.ScheduleDeletedAt = &deletedAt
			b.CachedScheduleData = &models.CachedScheduleData{
				Date:           schedule.Date,
				StartTime:      schedule.StartTime,
				TotalSeats:     schedule.TotalSeats,
				AvailableSeats: schedule.AvailableSeats,
				PricePerSeat:   schedule.PricePerSeat,
			}
			n++
		}
	}
	delete(m.schedules, schedule.ID)
	return n, nil
}

// fakeGateway records orders and answers payment lookups from a table
type fakeGateway struct {
	mu            sync.Mutex
	secret        string
	orders        map[string]*GatewayOrder
	payments      map[string]*GatewayPayment
	createErr     error
	fetchOrderErr error
	fetchPaymentN int
	orderSequence int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		secret:   "test_secret",
		orders:   map[string]*GatewayOrder{},
		payments: map[string]*GatewayPayment{},
	}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orderSequence++
	order := &GatewayOrder{
		ID:       fmt.Sprintf("order_%d", g.orderSequence),
		Amount:   req.Amount,
		Currency: "INR",
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    GatewayNotes(req.Notes),
	}
	g.orders[order.ID] = order
	return order, nil
}

func (g *fakeGateway) FetchOrder(ctx context.Context, orderID string) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchOrderErr != nil {
		return nil, g.fetchOrderErr
	}
	order, ok := g.orders[orderID]
	if !ok {
		return nil, &models.GatewayError{Code: "BAD_REQUEST_ERROR", Description: "order not found"}
	}
	return order, nil
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchPaymentN++
	payment, ok := g.payments[paymentID]
	if !ok {
		return nil, &models.GatewayError{Code: "BAD_REQUEST_ERROR", Description: "payment not found"}
	}
	return payment, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return signature == SignPayload(g.secret, []byte(orderID+"|"+paymentID))
}

func (g *fakeGateway) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if signature != SignPayload(g.secret, body) {
		return nil, &models.AuthenticityError{Message: "webhook signature verification failed"}
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, models.NewValidationError("body", "invalid webhook payload")
	}
	return &event, nil
}

func (g *fakeGateway) KeyID() string {
	return "rzp_test_key"
}

// pay records a successful capture of order and returns its checkout signature
func (g *fakeGateway) pay(orderID, paymentID, status string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	order := g.orders[orderID]
	g.payments[paymentID] = &GatewayPayment{
		ID:      paymentID,
		OrderID: orderID,
		Status:  status,
		Amount:  order.Amount,
		Notes:   order.Notes,
	}
	return SignPayload(g.secret, []byte(orderID+"|"+paymentID))
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []*models.PaymentAudit
}

func (a *fakeAudits) Log(ctx context.Context, audit *models.PaymentAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, audit)
	return nil
}

func (a *fakeAudits) count(eventType models.PaymentEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu        sync.Mutex
	reserved  int
	confirmed int
	cancelled int
}

func (n *fakeNotifier) BookingReserved(ctx context.Context, booking *models.Booking) {
	n.mu.Lock()
	n.reserved++
	n.mu.Unlock()
}

func (n *fakeNotifier) BookingConfirmed(ctx context.Context, booking *models.Booking) {
	n.mu.Lock()
	n.confirmed++
	n.mu.Unlock()
}

func (n *fakeNotifier) BookingCancelled(ctx context.Context, booking *models.Booking) {
	n.mu.Lock()
	n.cancelled++
	n.mu.Unlock()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakeAbandoner struct {
	mu    sync.Mutex
	armed map[uuid.UUID]time.Time
	err   error
}

func (a *fakeAbandoner) ScheduleAbandon(ctx context.Context, bookingID uuid.UUID, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed == nil {
		a.armed = map[uuid.UUID]time.Time{}
	}
	a.armed[bookingID] = at
	return a.err
}

// fixture wires the booking services over one memory store with one admin,
// one car, one route and a ten seat schedule
type fixture struct {
	t         *testing.T
	store     *memoryStore
	gateway   *fakeGateway
	audits    *fakeAudits
	notifier  *fakeNotifier
	publisher *fakePublisher
	abandoner *fakeAbandoner

	reservations   *ReservationService
	reconciliation *ReconciliationService
	sweeper        *SweeperService
	bookings       *BookingService

	now      time.Time
	adminID  uuid.UUID
	userID   uuid.UUID
	car      *models.Car
	route    *models.Route
	schedule *models.Schedule
	payments int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		t:         t,
		store:     newMemoryStore(),
		gateway:   newFakeGateway(),
		audits:    &fakeAudits{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		abandoner: &fakeAbandoner{},
		now:       time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		adminID:   uuid.New(),
		userID:    uuid.New(),
	}
	clock := func() time.Time { return f.now }
	logger := quietLogger()

	f.car = &models.Car{ID: uuid.New(), AdminID: f.adminID, Model: "Innova", Seater: 10, Status: models.FleetStatusActive}
	f.route = &models.Route{
		ID:        uuid.New(),
		Name:      "Pune to Mumbai",
		CarID:     f.car.ID,
		AdminID:   f.adminID,
		StartAddr: "Pune",
		EndAddr:   "Mumbai",
		Status:    models.FleetStatusActive,
	}
	f.schedule = &models.Schedule{
		ID:             uuid.New(),
		RouteID:        f.route.ID,
		Date:           f.now.AddDate(0, 0, 2),
		StartTime:      "09:00",
		TotalSeats:     10,
		AvailableSeats: 10,
		PricePerSeat:   500,
		Status:         models.ScheduleStatusActive,
		SeatLayout:     models.BuildSeatLayout(10),
	}
	f.store.cars[f.car.ID] = f.car
	f.store.routes[f.route.ID] = f.route
	f.store.schedules[f.schedule.ID] = copySchedule(f.schedule)

	cfg := config.BookingConfig{PaymentTimeout: 15 * time.Minute, AdvancePercent: 40}
	f.reservations = NewReservationService(f.store, f.store, f.store, f.gateway, f.audits, f.notifier, f.publisher, cfg, logger)
	f.reservations.SetAbandonmentScheduler(f.abandoner)
	f.reservations.now = clock
	f.reconciliation = NewReconciliationService(f.store, f.store, f.gateway, f.audits, f.notifier, f.publisher, logger)
	f.reconciliation.now = clock
	f.sweeper = NewSweeperService(f.store, f.store, f.audits, f.publisher, 2, logger)
	f.sweeper.now = clock
	f.bookings = NewBookingService(f.store, f.store, f.store, f.store, f.audits, f.notifier, f.publisher, logger)
	return f
}

func (f *fixture) request(seats ...string) *models.ReserveRequest {
	passengers := make([]models.Passenger, len(seats))
	for i := range seats {
		passengers[i] = models.Passenger{
			Name:   fmt.Sprintf("Passenger %d", i+1),
			Age:    30,
			Gender: "female",
			Phone:  "+91 98765 4321" + fmt.Sprint(i%10),
		}
	}
	return &models.ReserveRequest{
		ScheduleID:    f.schedule.ID,
		RouteID:       f.route.ID,
		CarID:         f.car.ID,
		SelectedSeats: seats,
		Passengers:    passengers,
	}
}

func (f *fixture) reserve(seats ...string) (*models.ReserveResponse, error) {
	return f.reservations.Reserve(context.Background(), f.userID, f.request(seats...))
}

func (f *fixture) mustReserve(seats ...string) *models.ReserveResponse {
	resp, err := f.reserve(seats...)
	require.NoError(f.t, err)
	return resp
}

// pay captures the order of resp at the gateway and returns the confirm request
func (f *fixture) pay(resp *models.ReserveResponse, status string) *models.ConfirmPaymentRequest {
	f.payments++
	paymentID := fmt.Sprintf("pay_%d", f.payments)
	signature := f.gateway.pay(resp.OrderID, paymentID, status)
	id := resp.Booking.ID
	return &models.ConfirmPaymentRequest{
		BookingID: &id,
		OrderID:   resp.OrderID,
		PaymentID: paymentID,
		Signature: signature,
	}
}

func (f *fixture) available() int {
	s, err := f.store.GetScheduleWithSeats(context.Background(), f.schedule.ID)
	require.NoError(f.t, err)
	require.NoError(f.t, s.CheckInventory())
	return s.AvailableSeats
}

func (f *fixture) booking(id uuid.UUID) *models.Booking {
	b, err := f.store.GetBookingByID(context.Background(), id)
	require.NoError(f.t, err)
	require.NotNil(f.t, b)
	return b
}
