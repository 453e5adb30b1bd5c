package booking

import (
	"context"

	"go.uber.org/zap"

	"cinema-checkout-cli/model"
)

// SeatInventory relays hold, release and sell calls to the remote inventory.
// A refused call surfaces as *InventoryError; the inventory is the only place
// seat ownership is decided, so refusals are never retried here.
type SeatInventory struct {
	api    InventoryAPI
	logger *zap.Logger
}

func NewSeatInventory(api InventoryAPI, logger *zap.Logger) *SeatInventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatInventory{api: api, logger: logger.Named("inventory")}
}

func (s *SeatInventory) Hold(ctx context.Context, showtimeID string, seatIDs []string) error {
	result, err := s.api.HoldSeats(ctx, showtimeID, seatIDs)
	return s.outcome("hold", seatIDs, result, err)
}

func (s *SeatInventory) Release(ctx context.Context, showtimeID string, seatIDs []string) error {
	result, err := s.api.ReleaseSeats(ctx, showtimeID, seatIDs)
	return s.outcome("release", seatIDs, result, err)
}

// Sell is only valid once the remote booking record exists.
func (s *SeatInventory) Sell(ctx context.Context, showtimeID string, seatIDs []string) error {
	result, err := s.api.SellSeats(ctx, showtimeID, seatIDs)
	return s.outcome("sell", seatIDs, result, err)
}

func (s *SeatInventory) SeatMap(ctx context.Context, showtimeID string) (model.SeatMap, error) {
	seatMap, err := s.api.GetSeatMap(ctx, showtimeID)
	if err != nil {
		return model.SeatMap{}, classify("load seat map", err)
	}
	return seatMap, nil
}

func (s *SeatInventory) outcome(op string, seatIDs []string, result model.SeatResult, err error) error {
	if err != nil {
		s.logger.Warn("seat request failed", zap.String("op", op), zap.Strings("seat_ids", seatIDs), zap.Error(err))
		return classify(op+" seats", err)
	}
	if !result.Success {
		s.logger.Info("seat request refused", zap.String("op", op), zap.Strings("seat_ids", seatIDs), zap.String("message", result.Message))
		return &InventoryError{Op: op, SeatIds: seatIDs, Message: result.Message}
	}
	return nil
}
