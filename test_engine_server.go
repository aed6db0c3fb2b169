package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type chunk struct {
	Text      string      `json:"text"`
	Timestamp [2]*float64 `json:"timestamp"`
}

type engineOutput struct {
	IsBusy bool    `json:"isBusy"`
	Text   string  `json:"text"`
	Chunks []chunk `json:"chunks"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	err := r.ParseMultipartForm(10 << 20) // 10 MB
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	requestID := r.FormValue("request_id")
	mimeType := r.FormValue("mime_type")
	duration := r.FormValue("duration")
	language := r.FormValue("language")

	// Get audio file
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("TRANSCRIPTION REQUEST RECEIVED:")
	log.Printf("  Request ID: %s", requestID)
	log.Printf("  MIME Type: %s", mimeType)
	log.Printf("  Duration: %s seconds", duration)
	log.Printf("  Language: %s", language)
	log.Printf("  Filename: %s", header.Filename)
	log.Printf("  Audio Size: %d bytes", len(audioData))

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	durationSeconds := parseFloat64(duration)
	half := durationSeconds / 2

	// Create fake engine output with two timestamped segments
	response := engineOutput{
		IsBusy: false,
		Text:   " This is a test transcription of the recorded audio.",
		Chunks: []chunk{
			{Text: " This is a test transcription", Timestamp: [2]*float64{ptr(0), ptr(half)}},
			{Text: " of the recorded audio.", Timestamp: [2]*float64{ptr(half), ptr(durationSeconds)}},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("TRANSCRIPTION RESPONSE SENT: '%s'", response.Text)
	log.Println("---")
}

func ptr(v float64) *float64 {
	return &v
}

func parseFloat64(s string) float64 {
	var val float64
	fmt.Sscanf(s, "%f", &val)
	return val
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)

	port := ":9000"
	log.Printf("Test engine server starting on port %s", port)
	log.Printf("Endpoint: http://localhost%s/transcribe", port)
	log.Println("Update your config to use: http://localhost:9000/transcribe")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
