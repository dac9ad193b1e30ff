package server

import (
	_ "embed"
	"net/http"
)

//go:embed dashboard.html
var dashboard []byte

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(dashboard)
}
