package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"telegram-bot-hosting/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleRobokassaResult is the payment webhook. The gateway verifies the
// MD5 signature; a verified notice is applied exactly once and the literal
// OK{InvId} body confirms receipt to Robokassa.
func (s *Server) handleRobokassaResult(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	notice, err := s.gateway.ParseNotice(r.Form)
	if err != nil {
		if errors.Is(err, domain.ErrBadSignature) {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature rejected")
			http.Error(w, "bad sign", http.StatusBadRequest)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.payments.Apply(r.Context(), notice); err != nil {
		s.log.Error().Err(err).Int64("inv_id", notice.InvID).Msg("payment apply failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "OK%d", notice.InvID)
}

func (s *Server) handlePaymentSuccess(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Оплата прошла успешно. Вернитесь в Telegram — доступ уже включён."))
}

func (s *Server) handlePaymentFail(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Оплата не завершена. Вернитесь в Telegram и попробуйте ещё раз."))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Platform(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("stats failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}
