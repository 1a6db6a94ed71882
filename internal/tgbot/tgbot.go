package tgbot

import (
	"log/slog"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/tg/tgCallback.go"
	"github.com/KotFed0t/dividend_tracker/internal/transport/telegram"
	customMW "github.com/KotFed0t/dividend_tracker/internal/transport/telegram/middleware"
	"github.com/KotFed0t/dividend_tracker/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type TGBot struct {
	bot          *tele.Bot
	ctrl         *telegram.Controller
	allowedChats []int64
}

func New(cfg *config.Config, ctrl *telegram.Controller) (*TGBot, error) {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
		OnError: func(err error, c tele.Context) {
			rqID := ""
			if c != nil {
				rqID, _ = c.Get("rqID").(string)
			}
			slog.Error("telebot handler error", slog.String("rqID", rqID), slog.String("err", err.Error()))
		},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		return nil, err
	}

	return &TGBot{bot: b, ctrl: ctrl, allowedChats: cfg.Telegram.AllowedChatIDs}, nil
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger(), customMW.PrivateOnly(), customMW.AllowedChats(b.allowedChats))

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		// the chat session decides which step the free text answers
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)

		chatSession, err := b.ctrl.GetChatSession(ctx, c)
		if err != nil {
			slog.Error("got error from GetChatSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("Something went wrong...")
		}

		switch chatSession.Action {
		case model.ExpectingSaveName:
			return b.ctrl.ProcessSaveName(c)
		case model.ExpectingNewPortfolioName:
			return b.ctrl.ProcessNewPortfolioName(c)
		case model.ExpectingImportFile:
			return c.Send("Waiting for a .json file, or use /start to cancel")
		default:
			slog.Debug("text outside of a dialog", slog.String("rqID", rqID), slog.Any("action", chatSession.Action))
			return c.Send("Use one of the commands, see /start")
		}
	})

	b.bot.Handle(tele.OnDocument, b.ctrl.Import)

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/help", b.ctrl.Start)
	b.bot.Handle("/summary", b.ctrl.Summary)
	b.bot.Handle("/holdings", b.ctrl.Holdings)
	b.bot.Handle("/lots", b.ctrl.Lots)
	b.bot.Handle("/dividends", b.ctrl.Dividends)
	b.bot.Handle("/cashflow", b.ctrl.CashFlow)

	b.bot.Handle("/add_lot", b.ctrl.AddLot)
	b.bot.Handle("/edit_lot", b.ctrl.EditLot)
	b.bot.Handle("/remove_lot", b.ctrl.RemoveLot)
	b.bot.Handle("/remove_dividend", b.ctrl.RemoveDividend)
	b.bot.Handle("/seed", b.ctrl.Seed)

	b.bot.Handle("/refresh_quotes", b.ctrl.RefreshQuotes)
	b.bot.Handle("/refresh_dividends", b.ctrl.RefreshDividends)

	b.bot.Handle("/portfolios", b.ctrl.Portfolios)
	b.bot.Handle("/save", b.ctrl.Save)
	b.bot.Handle("/load", b.ctrl.Load)
	b.bot.Handle("/new", b.ctrl.NewPortfolio)
	b.bot.Handle("/rename", b.ctrl.Rename)
	b.bot.Handle("/delete", b.ctrl.Delete)

	b.bot.Handle("/export", b.ctrl.ExportXLSX)
	b.bot.Handle("/export_json", b.ctrl.ExportJSON)
	b.bot.Handle("/import", b.ctrl.InitImport)
	b.bot.Handle("/reset", b.ctrl.Reset)

	b.bot.Handle(&tele.Btn{Unique: tgCallback.RefreshQuotes}, b.ctrl.RefreshQuotesCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.RefreshDividends}, b.ctrl.RefreshDividendsCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.ShowHoldings}, b.ctrl.HoldingsCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.ExportXLSX}, b.ctrl.ExportXLSXCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.LoadPortfolio}, b.ctrl.LoadCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.DeletePortfolio}, b.ctrl.DeleteCallback)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.RemoveLot}, b.ctrl.RemoveLotCallback)
}
