package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rindex-exchange/internal/engine"
	"rindex-exchange/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrUnknownTrader):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidOrder), errors.Is(err, engine.ErrUnknownInstrument):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrSelfTradeOnly), errors.Is(err, engine.ErrDuplicate):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, errors.Join(engine.ErrNotFound, err)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// --- traders ---

type registerTraderRequest struct {
	Username string           `json:"username"`
	Type     types.TraderType `json:"type"`
}

func (s *Server) handleRegisterTrader(w http.ResponseWriter, r *http.Request) {
	var req registerTraderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}
	if req.Type == "" {
		req.Type = types.TraderTypeHuman
	}
	trader, err := s.engine.RegisterTrader(req.Username, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trader)
}

func (s *Server) handleGetTraders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetAllTraders())
}

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "traderID")
	if err != nil {
		writeError(w, err)
		return
	}
	trader, err := s.engine.GetTrader(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trader)
}

func (s *Server) handleGetTraderPosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "traderID")
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := s.engine.GetPosition(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleGetTraderTrades(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "traderID")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", 100)
	trades := s.engine.GetRecentTrades(0)
	out := make([]*types.Trade, 0, limit)
	for _, t := range trades {
		if t.BuyerID == id || t.SellerID == id {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "traderID")
	if err != nil {
		writeError(w, err)
		return
	}
	order, trades, err := s.engine.ClosePosition(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order, "trades": trades})
}

// --- orders ---

type submitOrderRequest struct {
	TraderID   uuid.UUID       `json:"trader_id"`
	Instrument string          `json:"instrument"`
	Side       types.Side      `json:"side"`
	Type       types.OrderType `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Leverage   int             `json:"leverage"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed order"})
		return
	}
	order, trades, err := s.engine.SubmitOrder(engine.OrderRequest{
		TraderID:   req.TraderID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Price:      req.Price,
		Size:       req.Size,
		Leverage:   req.Leverage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order, "trades": trades})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(r, "orderID")
	if err != nil {
		writeError(w, err)
		return
	}
	traderID, err := uuid.Parse(r.URL.Query().Get("trader_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trader_id is required"})
		return
	}
	order, err := s.engine.CancelOrder(traderID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// --- market ---

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	depth := queryInt(r, "depth", 0)
	writeJSON(w, http.StatusOK, s.engine.GetBook(depth))
}

func (s *Server) handleGetOrdersAtPrice(w http.ResponseWriter, r *http.Request) {
	side := types.Side(r.URL.Query().Get("side"))
	if side != types.SideBuy && side != types.SideSell {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "side must be buy or sell"})
		return
	}
	price, err := decimal.NewFromString(r.URL.Query().Get("price"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "price is required"})
		return
	}
	orders := s.engine.GetOrdersAtPrice(side, price)
	if orders == nil {
		orders = []types.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.OpenPositions())
}

func (s *Server) handleGetOpenInterest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetOpenInterest())
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetRecentTrades(queryInt(r, "limit", 100)))
}

func (s *Server) handleGetLiquidations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetRecentLiquidations(queryInt(r, "limit", 50)))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetMarketStats())
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	interval := types.CandleInterval(r.URL.Query().Get("interval"))
	if interval == "" {
		interval = types.Interval1m
	}
	limit := queryInt(r, "limit", 100)

	var start, end time.Time
	if v := r.URL.Query().Get("start"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be a unix timestamp"})
			return
		}
		start = time.Unix(ts, 0).UTC()
	}
	if v := r.URL.Query().Get("end"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be a unix timestamp"})
			return
		}
		end = time.Unix(ts, 0).UTC()
	}

	candles, err := s.engine.GetCandlesRange(interval, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candles)
}
