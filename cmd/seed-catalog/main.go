package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/database"
	"github.com/stemsi/exam-engine/internal/logger"
	"github.com/stemsi/exam-engine/internal/model"
	"github.com/stemsi/exam-engine/internal/repository"
	"github.com/stemsi/exam-engine/internal/service"
)

type seedQuestion struct {
	category   string
	difficulty model.Difficulty
	question   string
	options    []string
	correct    int
}

var questions = []seedQuestion{
	{"Geography", model.DifficultyEasy, "What is the capital of France?", []string{"Berlin", "Madrid", "Paris", "Rome"}, 2},
	{"Geography", model.DifficultyEasy, "Which is the largest ocean?", []string{"Atlantic", "Indian", "Arctic", "Pacific"}, 3},
	{"Geography", model.DifficultyMedium, "Which river flows through Cairo?", []string{"Nile", "Congo", "Niger", "Zambezi"}, 0},
	{"Geography", model.DifficultyHard, "What is the capital of Mongolia?", []string{"Astana", "Ulaanbaatar", "Bishkek", "Tashkent"}, 1},
	{"Science", model.DifficultyEasy, "What is the chemical symbol for water?", []string{"O2", "CO2", "H2O", "NaCl"}, 2},
	{"Science", model.DifficultyEasy, "Which planet is known as the Red Planet?", []string{"Venus", "Mars", "Jupiter", "Mercury"}, 1},
	{"Science", model.DifficultyMedium, "What gas do plants absorb from the air?", []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"}, 2},
	{"Science", model.DifficultyMedium, "What is the speed of light in vacuum, approximately?", []string{"300,000 km/s", "150,000 km/s", "30,000 km/s", "3,000 km/s"}, 0},
	{"Science", model.DifficultyHard, "Which particle has no electric charge?", []string{"Proton", "Electron", "Neutron", "Positron"}, 2},
	{"Mathematics", model.DifficultyEasy, "What is 7 x 8?", []string{"54", "56", "58", "64"}, 1},
	{"Mathematics", model.DifficultyEasy, "What is the square root of 81?", []string{"7", "8", "9", "10"}, 2},
	{"Mathematics", model.DifficultyMedium, "What is 15% of 200?", []string{"15", "20", "30", "35"}, 2},
	{"Mathematics", model.DifficultyMedium, "How many degrees are in a triangle?", []string{"90", "180", "270", "360"}, 1},
	{"Mathematics", model.DifficultyHard, "What is the derivative of x^2?", []string{"x", "2x", "x^2", "2"}, 1},
	{"History", model.DifficultyEasy, "In which year did World War II end?", []string{"1943", "1944", "1945", "1946"}, 2},
	{"History", model.DifficultyMedium, "Who was the first person to walk on the Moon?", []string{"Buzz Aldrin", "Yuri Gagarin", "Neil Armstrong", "John Glenn"}, 2},
	{"History", model.DifficultyMedium, "Which empire built Machu Picchu?", []string{"Aztec", "Maya", "Inca", "Olmec"}, 2},
	{"History", model.DifficultyHard, "In which year did the Berlin Wall fall?", []string{"1987", "1989", "1991", "1993"}, 1},
	{"Technology", model.DifficultyEasy, "What does CPU stand for?", []string{"Central Processing Unit", "Computer Personal Unit", "Central Program Utility", "Core Processing Unit"}, 0},
	{"Technology", model.DifficultyMedium, "Which protocol secures web traffic?", []string{"FTP", "HTTP", "HTTPS", "SMTP"}, 2},
	{"Technology", model.DifficultyHard, "How many bits are in an IPv6 address?", []string{"32", "64", "128", "256"}, 2},
}

func intPtr(v int) *int { return &v }

var exams = []model.Exam{
	{Title: "General Knowledge", Description: "A mixed quiz across the whole question pool.", DurationMinutes: 30, TotalQuestions: 10, PassingScore: intPtr(70), IsActive: true},
	{Title: "Quick Check", Description: "A short timed quiz using the default passing score.", DurationMinutes: 10, TotalQuestions: 10, IsActive: true},
}

func main() {
	force := flag.Bool("force", false, "Seed even when the question pool is not empty")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	existing, err := questionRepo.ListActive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read question pool")
	}
	if len(existing) > 0 && !*force {
		fmt.Printf("Question pool already holds %d questions; use -force to seed anyway.\n", len(existing))
		return
	}

	fmt.Println("=== Seeding catalog ===")

	added := 0
	for _, sq := range questions {
		q := &model.Question{
			Question:      sq.question,
			Options:       sq.options,
			CorrectOption: sq.correct,
			Category:      sq.category,
			Difficulty:    sq.difficulty,
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			fmt.Printf("Error creating question %q: %v\n", sq.question, err)
			continue
		}
		added++
	}
	fmt.Printf("Created %d/%d questions\n", added, len(questions))

	var seeded []uuid.UUID
	for i := range exams {
		e := exams[i]
		if err := examRepo.Create(ctx, &e); err != nil {
			log.Fatal().Err(err).Str("title", e.Title).Msg("Failed to create exam")
		}
		seeded = append(seeded, e.ID)
		fmt.Printf("Created exam %q with ID: %s\n", e.Title, e.ID)
	}

	invalidateCatalog(ctx, cfg, log, examRepo, questionRepo, seeded)

	fmt.Println("\nSeed completed!")
}

// invalidateCatalog drops cached listings so running servers see the new
// catalog on their next read instead of after the cache TTL.
func invalidateCatalog(
	ctx context.Context,
	cfg *config.Config,
	log zerolog.Logger,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	examIDs []uuid.UUID,
) {
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, catalog cache left to expire")
		return
	}
	defer rdb.Close()

	catalog := service.NewExamService(examRepo, questionRepo, rdb, cfg.CatalogCacheTTL, cfg.StoreTimeout, log)
	if err := catalog.Invalidate(ctx, examIDs...); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate catalog cache")
		return
	}
	fmt.Println("Invalidated catalog cache")
}
