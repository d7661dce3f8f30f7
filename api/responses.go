package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ctpcj.dev/nextbus"
	"ctpcj.dev/nextbus/model"
)

// Response is the envelope around every API response.
type Response struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Data        any    `json:"data"`
	Text        string `json:"text"`
}

type StationResponse struct {
	Name   string            `json:"station_name"`
	Coords model.Coordinates `json:"coords"`
}

type ArrivalResponse struct {
	Station string  `json:"station_name"`
	Line    string  `json:"line_number"`
	Time    string  `json:"time"`
	Label   string  `json:"legacy_time"`
	Minutes float64 `json:"minutes"`
}

func newArrivalResponse(event model.Event, now time.Time) ArrivalResponse {
	return ArrivalResponse{
		Station: event.Station,
		Line:    event.Line,
		Time:    event.Time.Format(time.RFC3339),
		Label:   event.LegacyTimestamp(),
		Minutes: nextbus.MinutesUntil(event.Time, now),
	}
}

func (s *Server) send(w http.ResponseWriter, code int, text string, data any) {
	response := Response{
		Code:        code,
		CurrentTime: s.TimeNow().UnixMilli(),
		Data:        data,
		Text:        text,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		s.Logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) sendOK(w http.ResponseWriter, data any) {
	s.send(w, http.StatusOK, "OK", data)
}

func (s *Server) notFoundResponse(w http.ResponseWriter) {
	s.send(w, http.StatusNotFound, "resource not found", nil)
}

func (s *Server) badRequestResponse(w http.ResponseWriter, text string) {
	s.send(w, http.StatusBadRequest, text, nil)
}

func (s *Server) upstreamErrorResponse(w http.ResponseWriter) {
	s.send(w, http.StatusBadGateway, "timetable unavailable", nil)
}
