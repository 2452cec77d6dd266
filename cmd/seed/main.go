package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/uni-helpdesk/internal/config"
	"github.com/spec-kit/uni-helpdesk/internal/domain"
	"github.com/spec-kit/uni-helpdesk/internal/observability"
	"github.com/spec-kit/uni-helpdesk/internal/persistence"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	"github.com/spec-kit/uni-helpdesk/internal/service"
)

const (
	devAdminEmail    = "admin@university.edu"
	devAdminPassword = "admin12345"
)

var flagAdminName = &cli.StringFlag{
	Name:  "admin-name",
	Value: "HelpDesk Admin",
	Usage: "Display name of the seeded admin",
}

var flagSampleTicket = &cli.BoolFlag{
	Name:  "sample-ticket",
	Usage: "Also create a sample IN_REVIEW ticket when the store is empty (default: SEED_SAMPLE_TICKET)",
}

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "provision the helpdesk admin account and optional sample data",
		Flags: []cli.Flag{flagAdminName, flagSampleTicket},
		Action: func(cCtx *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cCtx.IsSet(flagSampleTicket.Name) {
				cfg.Seed.SampleTicket = cCtx.Bool(flagSampleTicket.Name)
			}
			return run(cCtx.Context, cfg, cCtx.String(flagAdminName.Name))
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, adminName string) error {
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	email, password, err := seedCredentials(cfg)
	if err != nil {
		return err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	if !pg.Enabled() {
		return errors.New("POSTGRES_DSN is required to seed")
	}
	if err := persistence.RunMigrations(pg.PoolHandle(), logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pool := pg.PoolHandle()
	staffRepo := repository.NewStaffRepository(pool)
	admin, err := service.NewStaffService(staffRepo, cfg.Auth.BcryptCost, logger).
		EnsureAdmin(ctx, adminName, email, password)
	if err != nil {
		return err
	}
	fmt.Println("Seeded admin", admin.Email)

	if !cfg.Seed.SampleTicket {
		return nil
	}
	ticket, err := seedSampleTicket(ctx, cfg, repository.NewTicketRepository(pool), admin, logger)
	if err != nil {
		return err
	}
	if ticket != nil {
		fmt.Println(seededTicketLine(ticket))
	}
	return nil
}

// seededTicketLine reports the sample ticket by its public id only; the view
// token is never displayed.
func seededTicketLine(ticket *domain.Ticket) string {
	return "Seeded ticket " + ticket.PublicTicketID
}

// seedCredentials falls back to development defaults outside production.
func seedCredentials(cfg *config.Config) (string, string, error) {
	email, password := cfg.Seed.AdminEmail, cfg.Seed.AdminPassword
	if cfg.App.IsProduction() && (email == "" || password == "") {
		return "", "", errors.New("ADMIN_SEED_EMAIL and ADMIN_SEED_PASSWORD are required in production")
	}
	if email == "" {
		email = devAdminEmail
	}
	if password == "" {
		password = devAdminPassword
	}
	return email, password, nil
}

// seedSampleTicket creates one ticket moved to IN_REVIEW. It does nothing
// when the store already holds tickets, so repeated runs stay idempotent.
func seedSampleTicket(ctx context.Context, cfg *config.Config, tickets repository.TicketRepository, admin *domain.StaffMember, logger *zap.Logger) (*domain.Ticket, error) {
	stats, err := tickets.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		logger.Info("tickets already present; sample ticket skipped", zap.Int("total", stats.Total))
		return nil, nil
	}

	validator := service.NewValidator(cfg.Student.EmailDomain, cfg.Upload.AllowedReferencePrefixes())
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: tickets,
		Validator:  validator,
		Logger:     logger,
	})
	workflow := service.NewWorkflowService(service.WorkflowDependencies{
		TicketRepo: tickets,
		Logger:     logger,
	})

	ticket, err := ticketService.CreateTicket(ctx, service.CreateTicketInput{
		IssueType:           string(domain.IssueTypeAttendance),
		Department:          "Computer Science",
		Title:               "Attendance missing week 2",
		Description:         "My attendance for week 2 lecture is missing.",
		StudentName:         "Sara Khalid",
		StudentID:           "20234567",
		StudentEmailOrPhone: "sara@" + cfg.Student.EmailDomain,
	})
	if err != nil {
		return nil, err
	}
	if _, err := workflow.ChangeStatus(ctx, ticket.ID, domain.TicketStatusInReview, admin); err != nil {
		return nil, err
	}
	return ticket, nil
}
