package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voltsight/twin-gateway/internal/engine"
	"github.com/voltsight/twin-gateway/internal/models"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

var odometerPattern = regexp.MustCompile(`Odometer: ([0-9.]+) km`)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/{version}/models/{model}:generateContent", generateContent)

	logger := log.New(log.Writer(), "gemini-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    *addr,
		Handler: logRequests(logger, r),
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// generateContent answers with a fenced prediction derived from the odometer in the prompt.
func generateContent(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"code":400,"message":"invalid request body","status":"INVALID_ARGUMENT"}}`, http.StatusBadRequest)
		return
	}

	var prompt strings.Builder
	for _, c := range req.Contents {
		for _, p := range c.Parts {
			prompt.WriteString(p.Text)
		}
	}

	result := predictionFor(prompt.String())
	body, err := json.Marshal(result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"candidates": []candidate{{
			Content:      content{Role: "model", Parts: []part{{Text: "```json\n" + string(body) + "\n```"}}},
			FinishReason: "STOP",
		}},
		"modelVersion": chi.URLParam(r, "model"),
	})
}

func predictionFor(prompt string) models.PredictionResult {
	km := 0.0
	if m := odometerPattern.FindStringSubmatch(prompt); m != nil {
		km, _ = strconv.ParseFloat(m[1], 64)
	}
	factor := engine.DegradationFactor(km)
	poorHabit := strings.Contains(prompt, "'Charge to 100%'") || strings.Contains(prompt, "irregular charging habits")

	level := models.AlertNominal
	switch {
	case km > 120000 && poorHabit:
		level = models.AlertCritical
	case km >= 60000 || poorHabit:
		level = models.AlertWarning
	}

	result := models.PredictionResult{
		RUL:              int(math.Round(1500 * (1 - factor))),
		SOHScore:         int(math.Round(100 - 40*factor)),
		AlertLevel:       level,
		DegradationCause: "Simulated wear from " + strconv.FormatFloat(km, 'f', 0, 64) + " km of use.",
		Recommendation:   "Keep daily charging between 20% and 80%.",
		NextSteps:        "No action required.",
		Confidence:       0.8,
	}
	if level != models.AlertNominal {
		result.NextSteps = "Schedule a battery health inspection with a certified technician."
	}
	return result
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
