package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/metrics"
	"github.com/bharathbbg/parcel-hub/internal/model"
)

const (
	accessCodeDigits = 6
	invalidPassword  = "invalid or expired password"
)

var anyClosetStatus = []model.ClosetStatus{
	model.ClosetAvailable, model.ClosetReserved, model.ClosetOccupied, model.ClosetMaintenance,
}

// LockerService drives the kiosk deposit and withdrawal protocol and the
// administration of lockers and their closets.
type LockerService struct {
	tx          Transactor
	lockers     LockerStore
	orders      OrderStore
	tracking    TrackingStore
	geo         GeographyStore
	cache       Cache
	notifier    Notifier
	metrics     *metrics.Metrics
	log         *zap.Logger
	passwordTTL time.Duration
	hashCost    int
	now         func() time.Time
	newCode     func() (string, error)
}

func NewLockerService(tx Transactor, lockers LockerStore, orders OrderStore, tracking TrackingStore,
	geo GeographyStore, cache Cache, notifier Notifier, passwordTTL time.Duration,
	m *metrics.Metrics, log *zap.Logger) *LockerService {
	if cache == nil {
		cache = nopCache{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if passwordTTL <= 0 {
		passwordTTL = 24 * time.Hour
	}
	return &LockerService{
		tx:          tx,
		lockers:     lockers,
		orders:      orders,
		tracking:    tracking,
		geo:         geo,
		cache:       cache,
		notifier:    notifier,
		metrics:     m,
		log:         log.Named("lockers"),
		passwordTTL: passwordTTL,
		hashCost:    bcrypt.DefaultCost,
		now:         time.Now,
		newCode:     accessCode,
	}
}

// accessCode draws a zero padded six digit code from crypto/rand.
func accessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", errors.Wrap(err, "error generating access code")
	}
	return fmt.Sprintf("%0*d", accessCodeDigits, n.Int64()), nil
}

// OpenDeposit reserves the first available closet for an incoming parcel.
func (s *LockerService) OpenDeposit(ctx context.Context, req *model.OpenDepositRequest) (res *model.OpenDepositResult, err error) {
	defer func() { s.metrics.LockerEvent("open_deposit", err) }()

	locker, err := s.lockers.GetLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}
	if !locker.IsActive {
		return nil, apperr.BadRequest("locker %d is inactive", locker.ID)
	}
	if _, err := s.orders.GetOrderByCode(ctx, req.TrackingCode); err != nil {
		return nil, err
	}

	number, ok, err := s.lockers.ReserveAvailableCloset(ctx, locker.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.BadRequest("no available closets in locker %d", locker.ID)
	}

	s.log.Info("closet reserved for deposit", zap.Int64("locker_id", locker.ID), zap.Int("closet_id", number),
		zap.String("order_code", req.TrackingCode))
	return &model.OpenDepositResult{LockerID: locker.ID, ClosetID: number}, nil
}

// CloseDeposit seals a reserved closet and issues its access code. The
// plaintext code is returned once; only its hash is stored.
func (s *LockerService) CloseDeposit(ctx context.Context, req *model.CloseDepositRequest) (res *model.CloseDepositResult, err error) {
	defer func() { s.metrics.LockerEvent("close_deposit", err) }()

	locker, err := s.lockers.GetLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrderByCode(ctx, req.TrackingCode)
	if err != nil {
		return nil, err
	}

	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, errors.Wrap(err, "error hashing access code")
	}
	hashed := string(hash)
	now := s.now()
	expires := now.Add(s.passwordTTL)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.lockers.TransitionCloset(ctx, model.ClosetTransition{
			LockerID:          locker.ID,
			Number:            req.ClosetID,
			From:              []model.ClosetStatus{model.ClosetReserved},
			To:                model.ClosetOccupied,
			CurrentOrderID:    &order.ID,
			PasswordHash:      &hashed,
			PasswordExpiresAt: &expires,
			DepositedAt:       &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return s.closetMismatch(ctx, locker.ID, req.ClosetID, model.ClosetReserved)
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       order.Status,
			Action:       model.ActionLockerDeposit,
			LocationType: model.LocationLocker,
			CityID:       &locker.CityID,
			LockerID:     &locker.ID,
			Note:         fmt.Sprintf("Deposited in locker %s, closet %d", locker.ReferenceID, req.ClosetID),
			Metadata:     model.Metadata{"closet_id": strconv.Itoa(req.ClosetID)},
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, order.OrderCode)
	s.notify(ctx, order, "Parcel in locker",
		fmt.Sprintf("Order %s was deposited in locker %s", order.OrderCode, locker.ReferenceID))
	s.log.Info("closet occupied", zap.Int64("locker_id", locker.ID), zap.Int("closet_id", req.ClosetID),
		zap.String("order_code", order.OrderCode))

	return &model.CloseDepositResult{
		LockerID:  locker.ID,
		ClosetID:  req.ClosetID,
		OrderID:   order.ID,
		OrderCode: order.OrderCode,
		Password:  code,
		ExpiresAt: expires,
	}, nil
}

// OpenWithdraw finds the occupied closet whose unexpired code matches
// password. Wrong and expired codes fail with the same message.
func (s *LockerService) OpenWithdraw(ctx context.Context, req *model.OpenWithdrawRequest) (res *model.OpenWithdrawResult, err error) {
	defer func() { s.metrics.LockerEvent("open_withdraw", err) }()

	locker, err := s.lockers.GetLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}
	closets, err := s.lockers.ListClosetsByStatus(ctx, locker.ID, model.ClosetOccupied)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range closets {
		c := &closets[i]
		if c.PasswordHash == nil || c.Expired(now) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(*c.PasswordHash), []byte(req.Password)) != nil {
			continue
		}
		res = &model.OpenWithdrawResult{LockerID: locker.ID, ClosetID: c.Number}
		if c.CurrentOrderID != nil {
			res.OrderID = *c.CurrentOrderID
		}
		return res, nil
	}
	s.log.Info("withdraw rejected", zap.Int64("locker_id", locker.ID))
	return nil, apperr.BadRequest(invalidPassword)
}

// CloseWithdraw empties the closet whatever its state and forgets its code.
func (s *LockerService) CloseWithdraw(ctx context.Context, req *model.CloseWithdrawRequest) (err error) {
	defer func() { s.metrics.LockerEvent("close_withdraw", err) }()

	locker, err := s.lockers.GetLocker(ctx, req.LockerID)
	if err != nil {
		return err
	}
	closet, err := s.lockers.GetCloset(ctx, locker.ID, req.ClosetID)
	if err != nil {
		return err
	}
	order, err := s.reset(ctx, locker, closet, anyClosetStatus, nil, nil, model.ActionLockerPickup, "Picked up from locker")
	if err != nil {
		return err
	}
	if order != nil {
		s.notify(ctx, order, "Parcel collected",
			fmt.Sprintf("Order %s was collected from locker %s", order.OrderCode, locker.ReferenceID))
	}
	return nil
}

// reset frees a closet through a compare-and-set from one of from and,
// when the closet held an order, records action on that order.
func (s *LockerService) reset(ctx context.Context, locker *model.Locker, closet *model.Closet, from []model.ClosetStatus,
	expiredBefore *time.Time, actor *int64, action model.TrackingAction, note string) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.lockers.TransitionCloset(ctx, model.ClosetTransition{
			LockerID:      closet.LockerID,
			Number:        closet.Number,
			From:          from,
			To:            model.ClosetAvailable,
			ExpiredBefore: expiredBefore,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("closet %d of locker %d changed concurrently", closet.Number, closet.LockerID)
		}
		if closet.CurrentOrderID == nil {
			return nil
		}
		order, err = s.orders.GetOrder(ctx, *closet.CurrentOrderID)
		if apperr.Is(err, apperr.KindNotFound) {
			order = nil
			return nil
		}
		if err != nil {
			return err
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       order.Status,
			Action:       action,
			LocationType: model.LocationLocker,
			CityID:       &locker.CityID,
			LockerID:     &locker.ID,
			ActorID:      actor,
			Note:         fmt.Sprintf("%s %s, closet %d", note, locker.ReferenceID, closet.Number),
			Metadata:     model.Metadata{"closet_id": strconv.Itoa(closet.Number)},
			CreatedAt:    s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	if order != nil {
		s.invalidate(ctx, order.OrderCode)
	}
	return order, nil
}

// CleanupExpired frees every occupied closet whose access code has expired.
// A failing closet is reported and does not stop the sweep.
func (s *LockerService) CleanupExpired(ctx context.Context) (*model.CleanupResult, error) {
	now := s.now()
	closets, err := s.lockers.ListExpiredClosets(ctx, now)
	if err != nil {
		return nil, err
	}

	res := &model.CleanupResult{Scanned: len(closets)}
	lockers := map[int64]*model.Locker{}
	for i := range closets {
		c := &closets[i]
		err := s.expireOne(ctx, lockers, c, now)
		s.metrics.BulkItem("cleanup_lockers", err)
		if err != nil {
			res.Errors = append(res.Errors, model.BulkItemError{
				ID:    fmt.Sprintf("%d/%d", c.LockerID, c.Number),
				Error: bulkMessage(err),
			})
			s.log.Warn("closet cleanup failed", zap.Int64("locker_id", c.LockerID), zap.Int("closet_id", c.Number), zap.Error(err))
			continue
		}
		res.Released++
	}
	s.metrics.ClosetsReleased(res.Released)
	if res.Scanned > 0 {
		s.log.Info("expired closets released", zap.Int("scanned", res.Scanned), zap.Int("released", res.Released))
	}
	return res, nil
}

func (s *LockerService) expireOne(ctx context.Context, lockers map[int64]*model.Locker, c *model.Closet, now time.Time) error {
	locker, ok := lockers[c.LockerID]
	if !ok {
		var err error
		locker, err = s.lockers.GetLocker(ctx, c.LockerID)
		if err != nil {
			return err
		}
		lockers[c.LockerID] = locker
	}
	order, err := s.reset(ctx, locker, c, []model.ClosetStatus{model.ClosetOccupied}, &now, nil,
		model.ActionLockerExpired, "Access code expired, released from locker")
	if err != nil {
		return err
	}
	if order != nil {
		s.notify(ctx, order, "Locker pickup expired",
			fmt.Sprintf("Order %s was not collected from locker %s in time", order.OrderCode, locker.ReferenceID))
	}
	return nil
}

func (s *LockerService) CreateLocker(ctx context.Context, p model.Principal, req *model.CreateLockerRequest) (*model.Locker, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("role %s may not manage lockers", p.Role)
	}
	if req.Capacity < 1 {
		return nil, apperr.BadRequest("capacity must be at least 1")
	}
	city, err := s.geo.GetCity(ctx, req.CityID)
	if err != nil {
		return nil, err
	}

	locker := &model.Locker{
		Name:           req.Name,
		Address:        req.Address,
		CityID:         city.ID,
		WilayaCode:     city.WilayaCode,
		Capacity:       req.Capacity,
		OperatingHours: req.OperatingHours,
		IsActive:       true,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockers.CreateLocker(ctx, locker); err != nil {
			return err
		}
		// the reference embeds the generated id
		locker.ReferenceID = model.LockerReference(city.WilayaCode, locker.ID)
		if err := s.lockers.UpdateLocker(ctx, locker); err != nil {
			return err
		}
		return s.lockers.AddClosets(ctx, locker.ID, 1, locker.Capacity)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("locker created", zap.Int64("locker_id", locker.ID), zap.String("reference_id", locker.ReferenceID))
	return s.lockers.GetLocker(ctx, locker.ID)
}

func (s *LockerService) GetLocker(ctx context.Context, id int64) (*model.Locker, error) {
	return s.lockers.GetLocker(ctx, id)
}

func (s *LockerService) ListLockers(ctx context.Context) ([]model.Locker, error) {
	return s.lockers.ListLockers(ctx)
}

// UpdateLocker applies a partial update. Moving the locker to another city
// regenerates its reference. Shrinking is refused while a closet that would
// disappear is in use.
func (s *LockerService) UpdateLocker(ctx context.Context, p model.Principal, id int64, req *model.UpdateLockerRequest) (*model.Locker, error) {
	if !p.IsAdmin() {
		return nil, apperr.Forbidden("role %s may not manage lockers", p.Role)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locker, err := s.lockers.GetLocker(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			locker.Name = *req.Name
		}
		if req.Address != nil {
			locker.Address = *req.Address
		}
		if req.OperatingHours != nil {
			locker.OperatingHours = *req.OperatingHours
		}
		if req.IsActive != nil {
			locker.IsActive = *req.IsActive
		}
		if req.CityID != nil && *req.CityID != locker.CityID {
			city, err := s.geo.GetCity(ctx, *req.CityID)
			if err != nil {
				return err
			}
			locker.CityID = city.ID
			locker.WilayaCode = city.WilayaCode
			locker.ReferenceID = model.LockerReference(city.WilayaCode, locker.ID)
		}

		oldCapacity := locker.Capacity
		if req.Capacity != nil {
			if *req.Capacity < 1 {
				return apperr.BadRequest("capacity must be at least 1")
			}
			locker.Capacity = *req.Capacity
		}
		if err := s.lockers.UpdateLocker(ctx, locker); err != nil {
			return err
		}

		switch {
		case locker.Capacity > oldCapacity:
			return s.lockers.AddClosets(ctx, locker.ID, oldCapacity+1, locker.Capacity)
		case locker.Capacity < oldCapacity:
			removed, err := s.lockers.RemoveClosetsAbove(ctx, locker.ID, locker.Capacity)
			if err != nil {
				return err
			}
			if removed != int64(oldCapacity-locker.Capacity) {
				return apperr.BadRequest("cannot shrink locker %d to %d closets: closets above %d are in use",
					locker.ID, locker.Capacity, locker.Capacity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.lockers.GetLocker(ctx, id)
}

// AssignCloset puts an order into an available closet without the kiosk
// protocol. No access code is issued.
func (s *LockerService) AssignCloset(ctx context.Context, p model.Principal, lockerID int64, number int, orderID int64) (*model.Closet, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not manage closets", p.Role)
	}
	locker, err := s.lockers.GetLocker(ctx, lockerID)
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		now := s.now()
		ok, err := s.lockers.TransitionCloset(ctx, model.ClosetTransition{
			LockerID:       lockerID,
			Number:         number,
			From:           []model.ClosetStatus{model.ClosetAvailable},
			To:             model.ClosetOccupied,
			CurrentOrderID: &order.ID,
			DepositedAt:    &now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return s.closetMismatch(ctx, lockerID, number, model.ClosetAvailable)
		}
		return s.tracking.AppendTracking(ctx, &model.OrderTracking{
			OrderID:      order.ID,
			Status:       order.Status,
			Action:       model.ActionLockerDeposit,
			LocationType: model.LocationLocker,
			CityID:       &locker.CityID,
			LockerID:     &locker.ID,
			ActorID:      &p.UserID,
			Note:         fmt.Sprintf("Assigned to locker %s, closet %d", locker.ReferenceID, number),
			Metadata:     model.Metadata{"closet_id": strconv.Itoa(number)},
			CreatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, order.OrderCode)
	return s.lockers.GetCloset(ctx, lockerID, number)
}

// ReleaseCloset frees a closet from any state.
func (s *LockerService) ReleaseCloset(ctx context.Context, p model.Principal, lockerID int64, number int) (*model.Closet, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not manage closets", p.Role)
	}
	locker, err := s.lockers.GetLocker(ctx, lockerID)
	if err != nil {
		return nil, err
	}
	closet, err := s.lockers.GetCloset(ctx, lockerID, number)
	if err != nil {
		return nil, err
	}
	if _, err := s.reset(ctx, locker, closet, anyClosetStatus, nil, &p.UserID, model.ActionLockerPickup, "Released by staff from locker"); err != nil {
		return nil, err
	}
	return s.lockers.GetCloset(ctx, lockerID, number)
}

// SetMaintenance takes an available closet out of service, or puts a closet
// under maintenance back into service.
func (s *LockerService) SetMaintenance(ctx context.Context, p model.Principal, lockerID int64, number int, on bool) (*model.Closet, error) {
	if !p.IsHubStaff() {
		return nil, apperr.Forbidden("role %s may not manage closets", p.Role)
	}
	from, to := model.ClosetMaintenance, model.ClosetAvailable
	if on {
		from, to = model.ClosetAvailable, model.ClosetMaintenance
	}
	ok, err := s.lockers.TransitionCloset(ctx, model.ClosetTransition{
		LockerID: lockerID,
		Number:   number,
		From:     []model.ClosetStatus{from},
		To:       to,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.closetMismatch(ctx, lockerID, number, from)
	}
	return s.lockers.GetCloset(ctx, lockerID, number)
}

// closetMismatch explains a failed compare-and-set.
func (s *LockerService) closetMismatch(ctx context.Context, lockerID int64, number int, want model.ClosetStatus) error {
	closet, err := s.lockers.GetCloset(ctx, lockerID, number)
	if err != nil {
		return err
	}
	return apperr.BadRequest("closet %d of locker %d is %s, expected %s", number, lockerID, closet.Status, want)
}

func (s *LockerService) invalidate(ctx context.Context, code string) {
	if err := s.cache.InvalidateTracking(ctx, code); err != nil {
		s.log.Warn("tracking cache invalidation failed", zap.String("order_code", code), zap.Error(err))
	}
}

func (s *LockerService) notify(ctx context.Context, order *model.Order, title, message string) {
	err := s.notifier.Notify(ctx, model.Notification{
		UserID:  order.SenderID,
		Title:   title,
		Message: message,
		Data:    map[string]string{"order_id": order.OrderCode},
	})
	if err != nil {
		s.log.Warn("notification failed", zap.Int64("user_id", order.SenderID), zap.String("order_code", order.OrderCode), zap.Error(err))
	}
}
