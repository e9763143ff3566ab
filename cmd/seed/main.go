package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/auth"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/db"
	"github.com/hackgods/hospital-appointments/internal/observability"
)

var departmentNames = []string{
	"Cardiology",
	"Neurology",
	"Orthopedics",
	"Pediatrics",
	"Dermatology",
	"Emergency",
	"General Medicine",
	"Oncology",
	"Psychiatry",
	"Radiology",
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

type seeder struct {
	faker  *gofakeit.Faker
	clinic *clinic.PgStore
	ledger *appointment.PgLedger
	clock  calendar.Clock
	log    zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logger := observability.InitLogger("seed", cfg.Env)
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	applied, err := db.Migrate(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("migrations applied")
	}

	clock := calendar.SystemClock{Location: cfg.Location()}
	s := &seeder{
		faker:  gofakeit.New(0),
		clinic: clinic.NewPgStore(pool, clock),
		ledger: appointment.NewPgLedger(pool),
		clock:  clock,
		log:    logger,
	}

	bg := context.Background()
	doctors, err := s.seedDepartmentsAndDoctors(bg, getInt("SEED_DOCTORS_PER_DEPARTMENT", 3))
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	patients, err := s.seedPatients(bg, pool, getInt("SEED_PATIENTS", 200))
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := s.seedAppointments(bg, doctors, patients, getInt("SEED_APPOINTMENT_DAYS", 14)); err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}

	if cfg.JWTSecret != "" {
		token, err := auth.IssueToken(auth.Admin{ID: uuid.New()}, []byte(cfg.JWTSecret), 24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue admin token")
		}
		fmt.Printf("admin token (24h): %s\n", token)
	}

	logger.Info().Msg("seed complete")
}

func (s *seeder) seedDepartmentsAndDoctors(ctx context.Context, perDepartment int) ([]clinic.Doctor, error) {
	s.log.Info().Int("departments", len(departmentNames)).Int("doctors_per_department", perDepartment).Msg("seeding departments and doctors")

	var doctors []clinic.Doctor
	for _, name := range departmentNames {
		dep, err := s.clinic.CreateDepartment(ctx, clinic.Department{
			Name:        name,
			Description: name + " department",
		})
		if err != nil {
			return nil, err
		}

		for i := 0; i < perDepartment; i++ {
			doc, err := s.clinic.CreateDoctor(ctx, clinic.Doctor{
				Name:           "Dr. " + s.faker.Name(),
				Email:          s.faker.Email(),
				Specialization: name,
				DepartmentID:   dep.ID,
				AvailableDays:  s.availableDays(),
				TimeSlots:      s.timeSlots(),
				Status:         clinic.DoctorActive,
			})
			if err != nil {
				return nil, err
			}
			doctors = append(doctors, *doc)
		}
	}

	s.log.Info().Int("doctors", len(doctors)).Msg("doctors seeded")
	return doctors, nil
}

// availableDays picks three to five distinct weekdays.
func (s *seeder) availableDays() []string {
	days := append([]string(nil), weekdays...)
	for i := len(days) - 1; i > 0; i-- {
		j := s.faker.Number(0, i)
		days[i], days[j] = days[j], days[i]
	}
	n := s.faker.Number(3, 5)
	picked := make(map[string]bool, n)
	for _, d := range days[:n] {
		picked[d] = true
	}
	var out []string
	for _, d := range weekdays {
		if picked[d] {
			out = append(out, d)
		}
	}
	return out
}

// timeSlots builds half-hour slots for a morning and an afternoon block.
func (s *seeder) timeSlots() []clinic.TimeSlot {
	var out []clinic.TimeSlot
	for _, block := range [][2]int{{8, 11}, {14, 16}} {
		for h := block[0]; h < block[1]; h++ {
			out = append(out,
				clinic.TimeSlot{StartTime: fmt.Sprintf("%02d:00", h), EndTime: fmt.Sprintf("%02d:30", h)},
				clinic.TimeSlot{StartTime: fmt.Sprintf("%02d:30", h), EndTime: fmt.Sprintf("%02d:00", h+1)},
			)
		}
	}
	return out
}

func (s *seeder) seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]clinic.Patient, error) {
	s.log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 100
	genders := []string{string(clinic.GenderMale), string(clinic.GenderFemale), string(clinic.GenderOther)}
	tx := db.NewPgTransactor(pool)

	var patients []clinic.Patient
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			for i := offset; i < end; i++ {
				p, err := s.clinic.CreatePatient(ctx, clinic.Profile{
					Name:             s.faker.Name(),
					Email:            fmt.Sprintf("%d.%s", i, s.faker.Email()),
					Contact:          s.faker.Phone(),
					Age:              s.faker.Number(1, 95),
					Gender:           clinic.Gender(s.faker.RandomString(genders)),
					Address:          s.faker.Street() + ", " + s.faker.City(),
					EmergencyContact: s.faker.Phone(),
				})
				if err != nil {
					return err
				}
				patients = append(patients, *p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		s.log.Info().Int("seeded", end).Int("total", count).Msg("patients seeded")
	}
	return patients, nil
}

// seedAppointments books random slots from days ago to days ahead. Past
// appointments get a final status so the daily rollups have data.
func (s *seeder) seedAppointments(ctx context.Context, doctors []clinic.Doctor, patients []clinic.Patient, days int) error {
	if len(doctors) == 0 || len(patients) == 0 {
		return nil
	}
	today := calendar.Today(s.clock)
	created, conflicts := 0, 0

	for offset := -days; offset <= days; offset++ {
		date, err := calendar.AddDays(today, offset)
		if err != nil {
			return err
		}
		weekday, _ := calendar.Weekday(date)

		for _, doc := range doctors {
			if !doc.WorksOn(weekday) {
				continue
			}
			for _, slot := range doc.TimeSlots {
				if s.faker.Number(1, 100) > 40 {
					continue
				}
				patient := patients[s.faker.Number(0, len(patients)-1)]
				dept := doc.DepartmentID
				appt, err := s.ledger.Reserve(ctx, appointment.ReserveParams{
					DoctorID:     doc.ID,
					PatientID:    patient.ID,
					DepartmentID: &dept,
					Date:         date,
					Time:         slot.StartTime,
				})
				if errors.Is(err, appointment.ErrSlotTaken) {
					conflicts++
					continue
				}
				if err != nil {
					return err
				}
				created++

				if date < today {
					status := appointment.StatusAttended
					if s.faker.Number(1, 100) <= 20 {
						status = appointment.StatusMissed
					}
					if _, err := s.ledger.TransitionStatus(ctx, appt.ID, status); err != nil {
						return err
					}
				}
			}
		}
	}

	s.log.Info().Int("created", created).Int("conflicts", conflicts).Msg("appointments seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
