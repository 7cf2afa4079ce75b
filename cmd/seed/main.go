package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careportal/booking-core/internal/db"
)

var slotTimes = []string{
	// Morning
	"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	// Afternoon
	"13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
	// Evening
	"18:00", "18:30", "19:00", "19:30",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSlots(context.Background(), pool, doctorIDs, 14); err != nil {
		log.Fatalf("seed slots: %v", err)
	}
	if err := seedStaff(context.Background(), pool, 12); err != nil {
		log.Fatalf("seed staff: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Gynecology",
		"Obstetrics",
		"Endocrinology",
		"General Practice",
		"Dermatology",
		"Urology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (doctor_id, full_name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Printf("seeding slots for %d days", days)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	for day := 0; day < days; day++ {
		date := today.AddDate(0, 0, day)

		for _, slotTime := range slotTimes {
			slotID := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO slots (slot_id, slot_date, slot_time, is_active, created_at)
				VALUES ($1, $2, $3, true, now())
			`, slotID, date, slotTime)
			if err != nil {
				return err
			}

			// Each doctor covers roughly half the slots.
			for _, doctorID := range doctorIDs {
				if gofakeit.Bool() {
					continue
				}
				_, err := tx.Exec(ctx, `
					INSERT INTO doctor_slot_assignments
						(doctor_slot_id, doctor_id, slot_id, appointments_count, max_appointments, created_at, updated_at)
					VALUES ($1, $2, $3, 0, $4, now(), now())
				`, uuid.New(), doctorID, slotID, gofakeit.Number(1, 3))
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("slots seeded")
	return nil
}

func seedStaff(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d staff members", count)

	shifts := [][2]string{
		{"06:00", "14:00"},
		{"12:00", "20:00"},
		{"08:00", "18:00"},
	}
	roles := []string{"receptionist", "doctor", "nurse"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		staffID := uuid.New()
		role := roles[gofakeit.Number(0, len(roles)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO staff_members (staff_id, full_name, working_email, role)
			VALUES ($1, $2, $3, $4)
		`, staffID, gofakeit.Name(), gofakeit.Email(), role)
		if err != nil {
			return err
		}

		shift := shifts[gofakeit.Number(0, len(shifts)-1)]
		_, err = tx.Exec(ctx, `
			INSERT INTO staff_schedules (schedule_id, staff_id, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), staffID, shift[0], shift[1])
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("staff seeded")
	return nil
}
