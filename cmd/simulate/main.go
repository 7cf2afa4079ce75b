// Command simulate fires concurrent booking requests at one slot to exercise
// the capacity invariant end to end: with K workers racing for a slot of
// capacity M, exactly M must win and the counter must finish at M.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/careportal/booking-core/internal/db"
)

type bookingRequest struct {
	DoctorID        string  `json:"doctor_id"`
	AppointmentDate string  `json:"appointment_date"`
	Schedule        string  `json:"schedule"`
	PreferredSlotID string  `json:"preferred_slot_id"`
	VisitType       string  `json:"visit_type"`
	FullName        string  `json:"full_name"`
	Phone           string  `json:"phone"`
	Email           *string `json:"email,omitempty"`
}

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:8080", "api-server base URL")
		doctorID     = flag.String("doctor", "", "doctor UUID")
		assignmentID = flag.String("slot", "", "doctor_slot_id UUID to contend on")
		date         = flag.String("date", time.Now().UTC().Format("2006-01-02"), "appointment date")
		schedule     = flag.String("schedule", "Morning", "schedule bucket")
		workers      = flag.Int("workers", 20, "concurrent booking attempts")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags)

	if *doctorID == "" || *assignmentID == "" {
		log.Fatal("-doctor and -slot are required")
	}
	if _, err := uuid.Parse(*assignmentID); err != nil {
		log.Fatalf("invalid -slot: %v", err)
	}

	var booked, slotFull, other int64
	var wg sync.WaitGroup

	client := &http.Client{Timeout: 10 * time.Second}
	start := time.Now()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			req := bookingRequest{
				DoctorID:        *doctorID,
				AppointmentDate: *date,
				Schedule:        *schedule,
				PreferredSlotID: *assignmentID,
				VisitType:       "consultation",
				FullName:        fmt.Sprintf("Load Tester %d", n),
				Phone:           fmt.Sprintf("+8491%07d", n),
			}

			status, body, err := post(client, *baseURL+"/bookings", req)
			switch {
			case err != nil:
				atomic.AddInt64(&other, 1)
				log.Printf("worker %d: request error: %v", n, err)
			case status == http.StatusOK:
				atomic.AddInt64(&booked, 1)
			case status == http.StatusBadRequest:
				atomic.AddInt64(&slotFull, 1)
			default:
				atomic.AddInt64(&other, 1)
				log.Printf("worker %d: status=%d body=%s", n, status, body)
			}
		}(i)
	}

	wg.Wait()

	log.Printf("done in %s: booked=%d rejected=%d other=%d (workers=%d)",
		time.Since(start), booked, slotFull, other, *workers)

	verifyCounter(*assignmentID, booked)
}

func post(client *http.Client, url string, payload any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(data), nil
}

// verifyCounter reads the assignment row directly and cross-checks it against
// the observed success count.
func verifyCounter(assignmentID string, booked int64) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Println("POSTGRES_DSN not set, skipping counter verification")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Printf("counter verification skipped: %v", err)
		return
	}
	defer pool.Close()

	var count, max int
	err = pool.QueryRow(ctx, `
		SELECT appointments_count, max_appointments
		FROM doctor_slot_assignments
		WHERE doctor_slot_id = $1
	`, assignmentID).Scan(&count, &max)
	if err != nil {
		log.Printf("counter verification failed: %v", err)
		return
	}

	log.Printf("assignment state: appointments_count=%d max_appointments=%d", count, max)
	if count > max {
		log.Printf("INVARIANT VIOLATED: count %d exceeds capacity %d", count, max)
	}
	if int64(count) < booked {
		log.Printf("INVARIANT VIOLATED: %d successes reported but counter is %d", booked, count)
	}
}
