package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/yungbote/journey-tutor-backend/internal/data/db"
	"github.com/yungbote/journey-tutor-backend/internal/data/repos"
	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/apierr"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

type CatalogFile struct {
	Journeys []CatalogJourney `yaml:"journeys"`
}

type CatalogJourney struct {
	Title        string        `yaml:"title"`
	Description  string        `yaml:"description"`
	MasterPrompt string        `yaml:"master_prompt"`
	ReportPrompt string        `yaml:"report_prompt"`
	Status       string        `yaml:"status"`
	Steps        []CatalogStep `yaml:"steps"`
}

type CatalogStep struct {
	Order       int    `yaml:"order"`
	Title       string `yaml:"title"`
	Content     string `yaml:"content"`
	RatePass    int    `yaml:"ratepass"`
	MaxAttempts int    `yaml:"maxattempts"`
	TimeLimit   *int   `yaml:"time_limit"`
}

// ParseCatalog decodes a catalog strictly: unknown keys are errors. Missing step orders are numbered by position.
func ParseCatalog(r io.Reader) (*CatalogFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file CatalogFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range file.Journeys {
		for j := range file.Journeys[i].Steps {
			if file.Journeys[i].Steps[j].Order == 0 {
				file.Journeys[i].Steps[j].Order = j + 1
			}
		}
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *CatalogFile) Validate() error {
	if f == nil || len(f.Journeys) == 0 {
		return errors.New("catalog has no journeys")
	}
	seen := map[string]bool{}
	for _, j := range f.Journeys {
		title := strings.TrimSpace(j.Title)
		if title == "" {
			return errors.New("journey title required")
		}
		if seen[title] {
			return fmt.Errorf("journey %q listed twice", title)
		}
		seen[title] = true
		if strings.TrimSpace(j.MasterPrompt) == "" {
			return fmt.Errorf("journey %q: master_prompt required", title)
		}
		switch j.Status {
		case "", types.JourneyStatusDraft, types.JourneyStatusPublished:
		default:
			return fmt.Errorf("journey %q: unknown status %q", title, j.Status)
		}
		if len(j.Steps) == 0 {
			return fmt.Errorf("journey %q: %w", title, ErrJourneyHasNoSteps)
		}
		orders := make([]int, 0, len(j.Steps))
		for _, s := range j.Steps {
			if strings.TrimSpace(s.Title) == "" {
				return fmt.Errorf("journey %q step %d: title required", title, s.Order)
			}
			if s.RatePass < 1 || s.RatePass > 5 {
				return fmt.Errorf("journey %q step %d: ratepass must be 1-5, got %d", title, s.Order, s.RatePass)
			}
			if s.MaxAttempts < 1 {
				return fmt.Errorf("journey %q step %d: maxattempts must be at least 1", title, s.Order)
			}
			orders = append(orders, s.Order)
		}
		sort.Ints(orders)
		for i, o := range orders {
			if o != i+1 {
				return fmt.Errorf("journey %q: step orders must run 1..%d without gaps", title, len(orders))
			}
		}
	}
	return nil
}

type CatalogImportResult struct {
	Created int
	Updated int
}

type JourneyCatalogService interface {
	Import(ctx context.Context, file *CatalogFile) (CatalogImportResult, error)
}

type journeyCatalogService struct {
	db       *gorm.DB
	log      *logger.Logger
	journeys repos.JourneyRepo
	steps    repos.JourneyStepRepo
}

func NewJourneyCatalogService(database *gorm.DB, baseLog *logger.Logger, journeyRepo repos.JourneyRepo, stepRepo repos.JourneyStepRepo) JourneyCatalogService {
	return &journeyCatalogService{
		db:       database,
		log:      baseLog.With("service", "JourneyCatalogService"),
		journeys: journeyRepo,
		steps:    stepRepo,
	}
}

// Import upserts every journey by title and replaces its steps, all in one transaction.
func (s *journeyCatalogService) Import(ctx context.Context, file *CatalogFile) (CatalogImportResult, error) {
	var res CatalogImportResult
	if err := file.Validate(); err != nil {
		return res, apierr.BadRequest(err)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, cj := range file.Journeys {
			title := strings.TrimSpace(cj.Title)
			status := cj.Status
			if status == "" {
				status = types.JourneyStatusPublished
			}
			var reportPrompt *string
			if rp := strings.TrimSpace(cj.ReportPrompt); rp != "" {
				reportPrompt = &rp
			}

			existing, err := s.journeys.GetByTitle(ctx, tx, title)
			if err != nil {
				return fmt.Errorf("load journey %q: %w", title, err)
			}
			var journey *types.Journey
			if existing == nil {
				created, err := s.journeys.Create(ctx, tx, []*types.Journey{{
					Title:        title,
					Description:  cj.Description,
					MasterPrompt: cj.MasterPrompt,
					ReportPrompt: reportPrompt,
					Status:       status,
				}})
				if db.IsUniqueViolation(err) {
					return apierr.Conflict("journey_exists", fmt.Errorf("journey %q was created concurrently", title))
				}
				if err != nil {
					return fmt.Errorf("create journey %q: %w", title, err)
				}
				journey = created[0]
				res.Created++
			} else {
				if err := s.journeys.UpdateFields(ctx, tx, existing.ID, map[string]interface{}{
					"description":   cj.Description,
					"master_prompt": cj.MasterPrompt,
					"report_prompt": reportPrompt,
					"status":        status,
				}); err != nil {
					return fmt.Errorf("update journey %q: %w", title, err)
				}
				journey = existing
				res.Updated++
			}

			steps := make([]*types.JourneyStep, 0, len(cj.Steps))
			for _, cs := range cj.Steps {
				steps = append(steps, &types.JourneyStep{
					JourneyID:   journey.ID,
					Order:       cs.Order,
					Title:       strings.TrimSpace(cs.Title),
					Content:     cs.Content,
					RatePass:    cs.RatePass,
					MaxAttempts: cs.MaxAttempts,
					TimeLimit:   cs.TimeLimit,
				})
			}
			if err := s.steps.ReplaceForJourney(ctx, tx, journey.ID, steps); err != nil {
				return fmt.Errorf("replace steps of %q: %w", title, err)
			}
		}
		return nil
	})
	if err != nil {
		return CatalogImportResult{}, err
	}
	s.log.Info("journey catalog imported", "created", res.Created, "updated", res.Updated)
	return res, nil
}
