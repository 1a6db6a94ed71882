package reportService

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"unicode"

	"github.com/KotFed0t/dividend_tracker/internal/cashflow"
	"github.com/KotFed0t/dividend_tracker/internal/converter/importConverter"
	"github.com/KotFed0t/dividend_tracker/internal/metrics"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const defaultName = "portfolio"

type Portfolio interface {
	State() (model.PortfolioSnapshot, []model.PurchaseLot, []model.EquityWithLots)
	ActivePortfolio() (id, name string)
}

type ReportGenerator interface {
	Generate(ctx context.Context, report reportGenerator.PortfolioReport) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (link string, err error)
}

// File is a rendered export. Link is set only when the file was published.
type File struct {
	Filename string
	Data     []byte
	Link     string
}

type ReportService struct {
	portfolio    Portfolio
	generator    ReportGenerator
	cloudStorage CloudStorage
}

// New builds the service. cloudStorage may be nil, exports are then returned
// without a link.
func New(portfolio Portfolio, generator ReportGenerator, cloudStorage CloudStorage) *ReportService {
	return &ReportService{
		portfolio:    portfolio,
		generator:    generator,
		cloudStorage: cloudStorage,
	}
}

// BuildReport assembles holdings, lots and the cash-flow report of the active portfolio.
func (s *ReportService) BuildReport(ctx context.Context) (reportGenerator.PortfolioReport, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ReportService.BuildReport"

	slog.Debug("BuildReport start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("BuildReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	snapshot, lots, views := s.portfolio.State()

	if len(views) == 0 && len(lots) == 0 {
		return reportGenerator.PortfolioReport{}, service.ErrEmptyPortfolio
	}

	var seed float64
	if snapshot.SeedAmount != nil {
		seed = *snapshot.SeedAmount
	}

	rows := metrics.ComputeHoldingRows(views)

	return reportGenerator.PortfolioReport{
		Name:     s.portfolioName(),
		AsOf:     snapshot.AsOf,
		Holdings: rows,
		Totals:   metrics.SumHoldingRows(rows),
		Lots:     lots,
		Views:    views,
		CashFlow: cashflow.Build(lots, views, seed, snapshot.SeedDate),
	}, nil
}

// ExportXLSX renders the workbook and publishes it when cloud storage is configured.
// A failed upload is logged and the file is still returned.
func (s *ReportService) ExportXLSX(ctx context.Context) (File, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ReportService.ExportXLSX"

	slog.Debug("ExportXLSX start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("ExportXLSX finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	report, err := s.BuildReport(ctx)
	if err != nil {
		return File{}, err
	}

	data, ext, err := s.generator.Generate(ctx, report)
	if err != nil {
		slog.Error("got error from generator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return File{}, err
	}

	file := File{Filename: fileName(report.Name, report.AsOf, ext), Data: data}

	if s.cloudStorage != nil {
		link, err := s.cloudStorage.UploadFile(ctx, bytes.NewReader(data), file.Filename)
		if err != nil {
			slog.Warn("can't upload export to cloud storage", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			file.Link = link
		}
	}

	return file, nil
}

// ExportJSON returns {snapshot, customLots}, the format accepted back by import.
func (s *ReportService) ExportJSON(ctx context.Context) (File, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "ReportService.ExportJSON"

	slog.Debug("ExportJSON start", slog.String("rqID", rqID), slog.String("op", op))

	snapshot, lots, _ := s.portfolio.State()
	data, err := importConverter.Export(snapshot, lots)
	if err != nil {
		slog.Error("got error from importConverter.Export", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return File{}, err
	}

	return File{Filename: fileName(s.portfolioName(), snapshot.AsOf, ".json"), Data: data}, nil
}

func (s *ReportService) portfolioName() string {
	if _, name := s.portfolio.ActivePortfolio(); name != "" {
		return name
	}
	return defaultName
}

// fileName builds "<name>_<asOf><ext>" with anything but letters, digits, '-' and '_' replaced.
func fileName(name, asOf, ext string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = defaultName
	}
	if asOf == "" {
		return clean + ext
	}
	return clean + "_" + asOf + ext
}
