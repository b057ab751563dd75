package fpsim

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	maxHoldDuration = time.Minute
)

type status struct {
	Touched bool     `json:"touched"`
	Users   []string `json:"users"`
}

// Handler returns the http handler driving the sensor, to be mounted under
// prefix:
//   - POST <prefix>/touch?finger=<name>[&hold=<duration>] places a finger,
//     released after hold if given.
//   - POST <prefix>/release lifts the finger.
//   - GET <prefix>/status returns the sensor status.
func (s *Sensor) Handler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, prefix) {
		case "/touch":
			s.handleTouch(w, r)
		case "/release":
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			s.Release()
			w.WriteHeader(http.StatusNoContent)
		case "/status":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(status{s.IsTouched(), s.Users()})
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Sensor) handleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var hold time.Duration
	if str := r.URL.Query().Get("hold"); str != "" {
		d, err := time.ParseDuration(str)
		if err != nil || d <= 0 || d > maxHoldDuration {
			http.Error(w, "invalid hold duration", http.StatusBadRequest)
			return
		}
		hold = d
	}

	finger := r.URL.Query().Get("finger")
	if err := s.Touch(finger); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.WithField("finger", finger).Debug("finger placed on sensor")

	if hold > 0 {
		time.AfterFunc(hold, s.Release)
	}
	w.WriteHeader(http.StatusNoContent)
}
