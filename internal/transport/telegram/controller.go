package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/data/session"
	"github.com/KotFed0t/dividend_tracker/internal/converter/importConverter"
	"github.com/KotFed0t/dividend_tracker/internal/converter/telebotConverter"
	"github.com/KotFed0t/dividend_tracker/internal/metrics"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/reportGenerator"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/internal/service/reportService"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg      = "Something went wrong..."
	emptyPortfolioMsg   = "The portfolio is empty. Add a purchase with /add_lot"
	portfolioMissingMsg = "Portfolio not found. See /portfolios"
)

type PortfolioStore interface {
	Snapshot() model.PortfolioSnapshot
	CustomLots() []model.PurchaseLot
	EquityViews() []model.EquityWithLots
	ActivePortfolio() (id, name string)
	QuoteStatus() model.FetchStatus
	DividendStatus() model.FetchStatus
	UpdateSeed(ctx context.Context, amount *float64, date string)
	LoadPortfolio(ctx context.Context, snapshot model.PortfolioSnapshot, lots []model.PurchaseLot)
	AddPurchaseLot(ctx context.Context, lot model.PurchaseLot)
	UpdatePurchaseLot(ctx context.Context, id string, upd model.PurchaseLotUpdate) bool
	RemovePurchaseLot(ctx context.Context, id string) bool
	RemoveDividend(ctx context.Context, symbol, dividendID string) bool
	RefreshQuotes(ctx context.Context) []model.QuoteResult
	RefreshDividends(ctx context.Context, monthsBack int) []model.DividendResult
	SaveCurrentPortfolio(ctx context.Context, name string) model.SavedPortfolio
	LoadSavedPortfolio(ctx context.Context, id string) bool
	DeleteSavedPortfolio(ctx context.Context, id string) bool
	RenameSavedPortfolio(ctx context.Context, id, name string) bool
	GetSavedPortfolios(ctx context.Context) []model.PortfolioMetadata
	CreateNewPortfolio(ctx context.Context, name string) string
	Reset(ctx context.Context)
}

type ReportService interface {
	BuildReport(ctx context.Context) (reportGenerator.PortfolioReport, error)
	ExportXLSX(ctx context.Context) (reportService.File, error)
	ExportJSON(ctx context.Context) (reportService.File, error)
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
}

type Controller struct {
	store         PortfolioStore
	reportService ReportService
	session       Session
	fileLimit     int64
	monthsBack    int
	newLotID      func() string
}

func NewController(store PortfolioStore, reportService ReportService, session Session, cfg *config.Config) *Controller {
	return &Controller{
		store:         store,
		reportService: reportService,
		session:       session,
		fileLimit:     int64(cfg.Telegram.FileLimitInBytes),
		monthsBack:    cfg.Dividends.MonthsBack,
		newLotID: func() string {
			return "lot-" + strings.Split(uuid.NewString(), "-")[0]
		},
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = ctrl.setAction(ctx, c, model.Session{Action: model.DefaultAction})
	return c.Send(telebotConverter.StartResponse())
}

func (ctrl *Controller) Summary(c tele.Context) error {
	_, name := ctrl.store.ActivePortfolio()
	text, markup := telebotConverter.SummaryResponse(
		name,
		ctrl.store.Snapshot(),
		metrics.ComputeOverview(ctrl.store.EquityViews()),
		ctrl.store.QuoteStatus(),
		ctrl.store.DividendStatus(),
	)
	return c.Send(text, markup)
}

func (ctrl *Controller) Holdings(c tele.Context) error {
	rows := metrics.ComputeHoldingRows(ctrl.store.EquityViews())
	return c.Send(telebotConverter.HoldingsResponse(rows, metrics.SumHoldingRows(rows)))
}

func (ctrl *Controller) HoldingsCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.Holdings(c)
}

func (ctrl *Controller) Lots(c tele.Context) error {
	text, markup := telebotConverter.LotsResponse(ctrl.store.CustomLots())
	return c.Send(text, markup)
}

func (ctrl *Controller) Dividends(c tele.Context) error {
	payouts, trailing := metrics.RecentPayouts(ctrl.store.EquityViews())
	return c.Send(telebotConverter.DividendsResponse(payouts, trailing))
}

func (ctrl *Controller) CashFlow(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	report, err := ctrl.reportService.BuildReport(ctx)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPortfolio) {
			return c.Send(emptyPortfolioMsg)
		}
		slog.Error("got error from reportService.BuildReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.CashFlowResponse(report.CashFlow))
}

// AddLot handles "/add_lot SYMBOL YYYY-MM-DD SHARES PRICE".
func (ctrl *Controller) AddLot(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	args := c.Args()
	if len(args) != 4 {
		return c.Send("Usage: /add_lot SYMBOL YYYY-MM-DD SHARES PRICE")
	}

	shares, err := parseNumber(args[2])
	if err != nil {
		return c.Send("Shares must be a number")
	}
	price, err := parseNumber(args[3])
	if err != nil {
		return c.Send("Price must be a number")
	}

	lot := model.PurchaseLot{
		ID:            ctrl.newLotID(),
		Symbol:        model.NormalizeSymbol(args[0]),
		TradeDate:     args[1],
		Shares:        shares,
		PricePerShare: price,
	}
	if err := model.ValidatePurchaseLot(lot); err != nil {
		slog.Debug("invalid lot", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(capitalize(strings.TrimPrefix(err.Error(), model.ErrInvalidLot.Error()+": ")))
	}

	ctrl.store.AddPurchaseLot(ctx, lot)

	return c.Send(fmt.Sprintf("Added %s: %s %g × %.2f on %s", lot.ID, lot.Symbol, lot.Shares, lot.PricePerShare, lot.TradeDate))
}

const editLotUsage = "Usage: /edit_lot ID [symbol=SYMBOL] [date=YYYY-MM-DD] [shares=SHARES] [price=PRICE]"

// EditLot handles "/edit_lot ID key=value...", changing only the listed fields.
func (ctrl *Controller) EditLot(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	args := c.Args()
	if len(args) < 2 {
		return c.Send(editLotUsage)
	}

	id := args[0]
	var upd model.PurchaseLotUpdate
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || value == "" {
			return c.Send(editLotUsage)
		}

		switch strings.ToLower(key) {
		case "symbol":
			symbol := model.NormalizeSymbol(value)
			upd.Symbol = &symbol
		case "date":
			date := value
			upd.TradeDate = &date
		case "shares":
			shares, err := parseNumber(value)
			if err != nil {
				return c.Send("Shares must be a number")
			}
			upd.Shares = &shares
		case "price":
			price, err := parseNumber(value)
			if err != nil {
				return c.Send("Price must be a number")
			}
			upd.PricePerShare = &price
		default:
			return c.Send(editLotUsage)
		}
	}

	lots := ctrl.store.CustomLots()
	idx := slices.IndexFunc(lots, func(l model.PurchaseLot) bool { return l.ID == id })
	if idx < 0 {
		return c.Send("Lot not found: " + id)
	}

	lot := lots[idx].Apply(upd)
	if err := model.ValidatePurchaseLot(lot); err != nil {
		slog.Debug("invalid lot edit", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(capitalize(strings.TrimPrefix(err.Error(), model.ErrInvalidLot.Error()+": ")))
	}

	if !ctrl.store.UpdatePurchaseLot(ctx, id, upd) {
		return c.Send("Lot not found: " + id)
	}

	return c.Send(fmt.Sprintf("Updated %s: %s %g × %.2f on %s", lot.ID, lot.Symbol, lot.Shares, lot.PricePerShare, lot.TradeDate))
}

func (ctrl *Controller) RemoveLot(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /remove_lot ID")
	}
	return ctrl.removeLot(c, args[0])
}

func (ctrl *Controller) RemoveLotCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.removeLot(c, c.Callback().Data)
}

func (ctrl *Controller) removeLot(c tele.Context, id string) error {
	ctx := utils.CreateCtxWithRqID(c)
	if !ctrl.store.RemovePurchaseLot(ctx, id) {
		return c.Send("Lot not found: " + id)
	}
	return c.Send("Removed lot " + id)
}

func (ctrl *Controller) RemoveDividend(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /remove_dividend SYMBOL ID")
	}

	if !ctrl.store.RemoveDividend(ctx, args[0], args[1]) {
		return c.Send(fmt.Sprintf("Dividend %s not found for %s", args[1], model.NormalizeSymbol(args[0])))
	}
	return c.Send(fmt.Sprintf("Removed dividend %s from %s", args[1], model.NormalizeSymbol(args[0])))
}

// Seed handles "/seed AMOUNT YYYY-MM-DD"; "/seed -" clears the seed.
func (ctrl *Controller) Seed(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) == 1 && args[0] == "-" {
		ctrl.store.UpdateSeed(ctx, nil, "")
		return c.Send("Seed cleared")
	}
	if len(args) != 2 {
		return c.Send("Usage: /seed AMOUNT YYYY-MM-DD")
	}

	amount, err := parseNumber(args[0])
	if err != nil || amount < 0 {
		return c.Send("Amount must be a non-negative number")
	}
	if !isDate(args[1]) {
		return c.Send("Date must be YYYY-MM-DD")
	}

	ctrl.store.UpdateSeed(ctx, &amount, args[1])

	return c.Send(fmt.Sprintf("Seed set to %.2f on %s", amount, args[1]))
}

func (ctrl *Controller) RefreshQuotes(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = c.Notify(tele.Typing)

	results := ctrl.store.RefreshQuotes(ctx)
	return c.Send(telebotConverter.QuotesRefreshResponse(results, ctrl.store.QuoteStatus()))
}

func (ctrl *Controller) RefreshQuotesCallback(c tele.Context) error {
	_ = c.Respond(&tele.CallbackResponse{Text: "Refreshing quotes…"})
	return ctrl.RefreshQuotes(c)
}

// RefreshDividends handles "/refresh_dividends [MONTHS]".
func (ctrl *Controller) RefreshDividends(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	monthsBack := ctrl.monthsBack
	if args := c.Args(); len(args) > 0 && c.Callback() == nil {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return c.Send("MONTHS must be a positive integer")
		}
		monthsBack = n
	}

	_ = c.Notify(tele.Typing)

	results := ctrl.store.RefreshDividends(ctx, monthsBack)
	return c.Send(telebotConverter.DividendsRefreshResponse(results, ctrl.store.DividendStatus()))
}

func (ctrl *Controller) RefreshDividendsCallback(c tele.Context) error {
	_ = c.Respond(&tele.CallbackResponse{Text: "Refreshing dividends…"})
	return ctrl.RefreshDividends(c)
}

func (ctrl *Controller) Portfolios(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	activeID, _ := ctrl.store.ActivePortfolio()
	text, markup := telebotConverter.PortfoliosResponse(ctrl.store.GetSavedPortfolios(ctx), activeID)
	return c.Send(text, markup)
}

// Save handles "/save [NAME]". Without a name the active portfolio keeps its
// name; when none is active the name is asked for.
func (ctrl *Controller) Save(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		_, name = ctrl.store.ActivePortfolio()
	}
	if name == "" {
		if err := ctrl.setAction(ctx, c, model.Session{Action: model.ExpectingSaveName}); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send("Enter a name for the portfolio:")
	}

	return ctrl.save(ctx, c, name)
}

func (ctrl *Controller) ProcessSaveName(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	name := strings.TrimSpace(c.Text())
	if name == "" {
		return c.Send("The name can't be empty. Enter a name for the portfolio:")
	}
	_ = ctrl.setAction(ctx, c, model.Session{Action: model.DefaultAction})

	return ctrl.save(ctx, c, name)
}

func (ctrl *Controller) save(ctx context.Context, c tele.Context, name string) error {
	saved := ctrl.store.SaveCurrentPortfolio(ctx, name)
	return c.Send(fmt.Sprintf("💾 Saved \"%s\" (%s)", saved.Name, saved.ID))
}

func (ctrl *Controller) Load(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /load ID")
	}
	return ctrl.load(c, args[0])
}

func (ctrl *Controller) LoadCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.load(c, c.Callback().Data)
}

func (ctrl *Controller) load(c tele.Context, id string) error {
	ctx := utils.CreateCtxWithRqID(c)
	if !ctrl.store.LoadSavedPortfolio(ctx, id) {
		return c.Send(portfolioMissingMsg)
	}
	_, name := ctrl.store.ActivePortfolio()
	return c.Send(fmt.Sprintf("📂 Loaded \"%s\"", name))
}

// NewPortfolio handles "/new [NAME]", asking for the name when omitted.
func (ctrl *Controller) NewPortfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	name := strings.TrimSpace(c.Message().Payload)
	if name == "" {
		if err := ctrl.setAction(ctx, c, model.Session{Action: model.ExpectingNewPortfolioName}); err != nil {
			return c.Send(internalErrMsg)
		}
		return c.Send("Enter a name for the new portfolio:")
	}

	return ctrl.createPortfolio(ctx, c, name)
}

func (ctrl *Controller) ProcessNewPortfolioName(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	name := strings.TrimSpace(c.Text())
	if name == "" {
		return c.Send("The name can't be empty. Enter a name for the new portfolio:")
	}
	_ = ctrl.setAction(ctx, c, model.Session{Action: model.DefaultAction})

	return ctrl.createPortfolio(ctx, c, name)
}

func (ctrl *Controller) createPortfolio(ctx context.Context, c tele.Context, name string) error {
	id := ctrl.store.CreateNewPortfolio(ctx, name)
	return c.Send(fmt.Sprintf("🆕 Created \"%s\" (%s) from the sample portfolio", name, id))
}

func (ctrl *Controller) Rename(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /rename ID NAME")
	}
	id := args[0]
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.Message().Payload), id))

	if !ctrl.store.RenameSavedPortfolio(ctx, id, name) {
		return c.Send(portfolioMissingMsg)
	}
	return c.Send(fmt.Sprintf("Renamed to \"%s\"", name))
}

func (ctrl *Controller) Delete(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /delete ID")
	}
	return ctrl.delete(c, args[0])
}

func (ctrl *Controller) DeleteCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.delete(c, c.Callback().Data)
}

func (ctrl *Controller) delete(c tele.Context, id string) error {
	ctx := utils.CreateCtxWithRqID(c)
	if !ctrl.store.DeleteSavedPortfolio(ctx, id) {
		return c.Send(portfolioMissingMsg)
	}
	return c.Send("🗑 Deleted " + id)
}

// Reset drops the working portfolio and reloads the sample one.
func (ctrl *Controller) Reset(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.store.Reset(ctx)
	_ = ctrl.setAction(ctx, c, model.Session{Action: model.DefaultAction})
	return c.Send("♻️ Storage cleared, the sample portfolio is loaded")
}

func (ctrl *Controller) ExportXLSX(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	_ = c.Notify(tele.UploadingDocument)

	file, err := ctrl.reportService.ExportXLSX(ctx)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPortfolio) {
			return c.Send(emptyPortfolioMsg)
		}
		slog.Error("got error from reportService.ExportXLSX", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(document(file))
}

func (ctrl *Controller) ExportXLSXCallback(c tele.Context) error {
	_ = c.Respond()
	return ctrl.ExportXLSX(c)
}

func (ctrl *Controller) ExportJSON(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	file, err := ctrl.reportService.ExportJSON(ctx)
	if err != nil {
		slog.Error("got error from reportService.ExportJSON", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(document(file))
}

func (ctrl *Controller) InitImport(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	if err := ctrl.setAction(ctx, c, model.Session{Action: model.ExpectingImportFile}); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send("Send the exported .json file")
}

// Import replaces the active snapshot and ledger with an uploaded export file.
func (ctrl *Controller) Import(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	doc := c.Message().Document
	if doc == nil {
		return c.Send("Send the exported .json file")
	}
	if !strings.EqualFold(filepath.Ext(doc.FileName), ".json") {
		return c.Send("Only .json exports can be imported")
	}
	if ctrl.fileLimit > 0 && doc.FileSize > ctrl.fileLimit {
		return c.Send(fmt.Sprintf("The file is too large, the limit is %d bytes", ctrl.fileLimit))
	}

	data, err := ctrl.download(c, &doc.File)
	if err != nil {
		slog.Error("can't download document", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	parsed, err := importConverter.ReadSnapshotFile(data)
	if err != nil {
		var validationErr *importConverter.ValidationError
		if errors.As(err, &validationErr) {
			return c.Send("Import failed: " + validationErr.Error())
		}
		slog.Error("got error from importConverter.ReadSnapshotFile", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	ctrl.store.LoadPortfolio(ctx, parsed.Snapshot, parsed.CustomLots)
	_ = ctrl.setAction(ctx, c, model.Session{Action: model.DefaultAction})

	return c.Send(fmt.Sprintf("📥 Imported %d equities and %d lots", len(parsed.Snapshot.Equities), len(ctrl.store.CustomLots())))
}

func (ctrl *Controller) download(c tele.Context, file *tele.File) ([]byte, error) {
	reader, err := c.Bot().File(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	limit := ctrl.fileLimit
	if limit <= 0 {
		return io.ReadAll(reader)
	}

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}

func (ctrl *Controller) setAction(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := ctrl.session.SetSession(ctx, chatKey(c), chatSession)
	if err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}
	return err
}

// GetChatSession returns the default session when the chat has none.
func (ctrl *Controller) GetChatSession(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, err := ctrl.session.GetSession(ctx, chatKey(c))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.Session{Action: model.DefaultAction}, nil
		}
		return model.Session{}, err
	}
	return chatSession, nil
}

func chatKey(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

func document(file reportService.File) *tele.Document {
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(file.Data)),
		FileName: file.Filename,
	}
	if file.Link != "" {
		doc.Caption = "🔗 " + file.Link
	}
	return doc
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func isDate(s string) bool {
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
