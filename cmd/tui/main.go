package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/splitledger/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/splitledger/internal/balance"
	"github.com/MrJamesThe3rd/splitledger/internal/balance/rediscache"
	"github.com/MrJamesThe3rd/splitledger/internal/config"
	"github.com/MrJamesThe3rd/splitledger/internal/confirmation"
	"github.com/MrJamesThe3rd/splitledger/internal/database"
	"github.com/MrJamesThe3rd/splitledger/internal/expense"
	expenseStore "github.com/MrJamesThe3rd/splitledger/internal/expense/store"
	"github.com/MrJamesThe3rd/splitledger/internal/group"
	groupStore "github.com/MrJamesThe3rd/splitledger/internal/group/store"
	"github.com/MrJamesThe3rd/splitledger/internal/importer"
	"github.com/MrJamesThe3rd/splitledger/internal/logging"
	"github.com/MrJamesThe3rd/splitledger/internal/notify"
	"github.com/MrJamesThe3rd/splitledger/internal/settlement"
	settlementStore "github.com/MrJamesThe3rd/splitledger/internal/settlement/store"
)

type services struct {
	balances    *balance.Service
	settlements *settlement.Service
	gateway     *confirmation.Gateway
	expenses    *expense.Service
	groups      *group.Service
	importer    *importer.Service
}

type model struct {
	session view.Session
	svc     services

	currentView View

	balancesView    view.BalancesModel
	settlementsView view.SettlementsModel
	reviewView      view.ReviewModel
	importView      view.ImportModel
	simulateView    view.SimulateModel
}

type View int

const (
	ViewMenu        View = 0
	ViewBalances    View = 1
	ViewSettlements View = 2
	ViewReview      View = 3
	ViewImport      View = 4
	ViewSimulate    View = 5
)

func initialModel(session view.Session, svc services) model {
	return model{
		session:      session,
		svc:          svc,
		currentView:  ViewMenu,
		importView:   view.NewImportModel(session, svc.importer, svc.expenses, svc.groups, svc.balances),
		simulateView: view.NewSimulateModel(svc.importer, svc.balances),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewBalances
				m.balancesView = view.NewBalancesModel(m.session, m.svc.balances, m.svc.settlements)

				return m, m.balancesView.Init()
			case "2":
				m.currentView = ViewSettlements
				m.settlementsView = view.NewSettlementsModel(m.session, m.svc.settlements)

				return m, m.settlementsView.Init()
			case "3":
				m.currentView = ViewReview
				m.reviewView = view.NewReviewModel(m.session, m.svc.settlements, m.svc.gateway)

				return m, m.reviewView.Init()
			case "4":
				m.currentView = ViewImport
				return m, m.importView.Init()
			case "5":
				m.currentView = ViewSimulate
				return m, m.simulateView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewBalances:
		var newModel tea.Model
		newModel, cmd = m.balancesView.Update(msg)
		m.balancesView = newModel.(view.BalancesModel)
	case ViewSettlements:
		var newModel tea.Model
		newModel, cmd = m.settlementsView.Update(msg)
		m.settlementsView = newModel.(view.SettlementsModel)
	case ViewReview:
		var newModel tea.Model
		newModel, cmd = m.reviewView.Update(msg)
		m.reviewView = newModel.(view.ReviewModel)
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewSimulate:
		var newModel tea.Model
		newModel, cmd = m.simulateView.Update(msg)
		m.simulateView = newModel.(view.SimulateModel)
	}

	return m, cmd
}

func (m model) View() string {
	var current view.View

	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			fmt.Sprintf("Splitledger: %s in %s\n\n", m.session.UserID, m.session.GroupID) +
				"1. Balances\n" +
				"2. Settlements\n" +
				"3. Review Payment Claims\n" +
				"4. Import Expenses\n" +
				"5. Simulate Settlement\n\n" +
				"q. Quit",
		)
	case ViewBalances:
		current = m.balancesView
	case ViewSettlements:
		current = m.settlementsView
	case ViewReview:
		current = m.reviewView
	case ViewImport:
		current = m.importView
	case ViewSimulate:
		current = m.simulateView
	default:
		return "Unknown View"
	}

	header := lipgloss.NewStyle().Bold(true).Render(current.Title())
	help := lipgloss.NewStyle().Faint(true).Render(current.ShortHelp())

	return lipgloss.JoinVertical(lipgloss.Left, header, current.View(), help)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("tui failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logFile, err := os.OpenFile(cfg.TUI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logging.SetupWithWriter(logFile, logging.ParseLevel(cfg.Log.Level))

	if strings.TrimSpace(cfg.TUI.UserID) == "" {
		return errors.New("TUI_USER_ID is required")
	}

	ctx := context.Background()

	db, err := database.New(cfg.DB.Driver, cfg.DataSource())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	dispatcher := notify.NewDispatcher(notify.NewLogSink(slog.Default()), cfg.Settlement.NotifyTimeout)
	defer dispatcher.Wait()

	var cache balance.Cache = balance.NopCache{}

	if cfg.Redis.URL != "" {
		client, err := rediscache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}

		cache = rediscache.New(client, cfg.Redis.BalanceTTL)
	}

	settlements := settlementStore.New(db)
	groupService := group.NewService(groupStore.New(db))
	expenseService := expense.NewService(expenseStore.New(db))
	balanceService := balance.NewService(expenseService, settlements, cache)

	svc := services{
		balances:    balanceService,
		settlements: settlement.NewService(settlements, groupService, dispatcher, balanceService, cfg.Settlement.MaxRetries),
		gateway:     confirmation.NewGateway(settlements, dispatcher, balanceService, cfg.Settlement.MaxRetries),
		expenses:    expenseService,
		groups:      groupService,
		importer:    importer.NewService(),
	}

	session := view.Session{UserID: cfg.TUI.UserID, GroupID: cfg.TUI.GroupID}
	if session.GroupID == "" {
		groups, err := groupService.ListForUser(ctx, session.UserID)
		if err != nil {
			return fmt.Errorf("list groups: %w", err)
		}

		if len(groups) == 0 {
			return fmt.Errorf("%s is not in any group; set TUI_GROUP_ID or import expenses first", session.UserID)
		}

		session.GroupID = groups[0].ID
	}

	slog.Info("starting console", "user_id", session.UserID, "group_id", session.GroupID)

	p := tea.NewProgram(initialModel(session, svc), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	return nil
}
