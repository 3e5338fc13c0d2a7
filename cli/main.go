package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Styling
var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#0a84ff")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#30d158")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#ff453a")).
			Padding(0, 1)
)

const defaultEstimate = 30

// nextStatus is the forward step offered by the 'n' key
var nextStatus = map[string]string{
	"confirmed":        "preparing",
	"preparing":        "ready",
	"ready":            "out_for_delivery",
	"out_for_delivery": "delivered",
}

// Model defines the application state
type Model struct {
	orderList   list.Model
	statsView   table.Model
	orderDetail Order
	spinner     spinner.Model
	textInput   textinput.Model
	client      *ApiClient
	loading     bool
	currentView string
	message     string
	error       string
}

// Initialize the model
func initialModel() Model {
	// Initialize spinner
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	// Initialize order list view
	orderList := list.New([]list.Item{}, list.NewDefaultDelegate(), 80, 20)
	orderList.Title = "Recent Orders"

	// Initialize stats view
	columns := []table.Column{
		{Title: "Counter", Width: 20},
		{Title: "Orders", Width: 10},
	}
	statsTable := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	// Password input
	ti := textinput.New()
	ti.Placeholder = "Admin password"
	ti.EchoMode = textinput.EchoPassword
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 30

	return Model{
		orderList:   orderList,
		statsView:   statsTable,
		spinner:     s,
		textInput:   ti,
		client:      NewApiClient(),
		currentView: "login",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.EnterAltScreen, textinput.Blink)
}

// Update handles UI updates
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.client.Close()
			return m, tea.Quit
		case "q":
			if m.currentView != "login" {
				m.client.Close()
				return m, tea.Quit
			}
		case "enter":
			switch m.currentView {
			case "login":
				m.loading = true
				m.error = ""
				return m, login(m.client, m.textInput.Value())
			case "orders":
				if selected, ok := m.orderList.SelectedItem().(orderItem); ok {
					m.currentView = "order_detail"
					return m, fetchOrderDetails(m.client, selected.id)
				}
			}
		case "esc":
			if m.currentView == "order_detail" || m.currentView == "stats" {
				m.currentView = "orders"
				return m, fetchOrders(m.client)
			}
		case "r":
			if m.currentView == "orders" {
				return m, fetchOrders(m.client)
			}
		case "s":
			if m.currentView == "orders" {
				m.currentView = "stats"
				return m, fetchStats(m.client)
			}
		case "a":
			if m.currentView == "order_detail" {
				return m, acceptOrder(m.client, m.orderDetail.OrderID)
			}
		case "x":
			if m.currentView == "order_detail" {
				return m, rejectOrder(m.client, m.orderDetail.OrderID)
			}
		case "n":
			if m.currentView == "order_detail" {
				next, ok := nextStatus[m.orderDetail.Status]
				if !ok {
					m.error = fmt.Sprintf("No next step from %s", m.orderDetail.Status)
					return m, nil
				}
				return m, advanceOrder(m.client, m.orderDetail.OrderID, next)
			}
		}
	case loggedInMsg:
		m.loading = false
		m.currentView = "orders"
		return m, fetchOrders(m.client)
	case ordersMsg:
		m.orderList.SetItems(convertOrdersToItems(msg.orders))
		return m, nil
	case orderDetailMsg:
		m.orderDetail = msg.order
		return m, nil
	case statsMsg:
		m.statsView.SetRows(statsRows(msg.stats))
		return m, nil
	case errorMsg:
		m.loading = false
		m.error = msg.err
		return m, nil
	case confirmMsg:
		m.error = ""
		m.message = msg.message
		return m, fetchOrderDetails(m.client, m.orderDetail.OrderID)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.currentView {
	case "login":
		m.textInput, cmd = m.textInput.Update(msg)
	case "orders":
		m.orderList, cmd = m.orderList.Update(msg)
	case "stats":
		m.statsView, cmd = m.statsView.Update(msg)
	}

	return m, cmd
}

// View renders the UI
func (m Model) View() string {
	var errLine string
	if m.error != "" {
		errLine = "\n" + errorStyle.Render(m.error) + "\n"
	}

	switch m.currentView {
	case "login":
		view := titleStyle.Render("Order Hub Admin") + "\n\n"
		view += infoStyle.Render(m.client.BaseURL) + "\n\n"
		view += m.textInput.View() + "\n"
		if m.loading {
			view += m.spinner.View() + " Signing in...\n"
		}
		return docStyle.Render(view + errLine + "\nPress 'enter' to sign in, 'ctrl+c' to quit\n")
	case "orders":
		help := "\nPress 'enter' to view details, 'r' to refresh, 's' for live stats, 'q' to quit\n"
		return docStyle.Render(m.orderList.View() + help + errLine)
	case "order_detail":
		view := orderDetailView(m.orderDetail)
		if m.message != "" {
			view += "\n" + successStyle.Render(m.message) + "\n"
		}
		return docStyle.Render(view + errLine)
	case "stats":
		return docStyle.Render(titleStyle.Render("Live Stats") + "\n\n" + m.statsView.View() + "\n\nPress 'esc' to go back\n" + errLine)
	default:
		return "Loading..."
	}
}

// Custom message types for the tea.Model
type loggedInMsg struct{}

type ordersMsg struct {
	orders []Order
}

type orderDetailMsg struct {
	order Order
}

type statsMsg struct {
	stats Stats
}

type errorMsg struct {
	err string
}

type confirmMsg struct {
	message string
}

// orderItem represents an order in the list
type orderItem struct {
	id     string
	title  string
	desc   string
	status string
}

func (i orderItem) Title() string       { return i.title }
func (i orderItem) Description() string { return i.desc }
func (i orderItem) FilterValue() string { return i.title }

func login(client *ApiClient, password string) tea.Cmd {
	return func() tea.Msg {
		if err := client.Login(password); err != nil {
			return errorMsg{err: err.Error()}
		}
		return loggedInMsg{}
	}
}

// fetchOrders retrieves orders from the API
func fetchOrders(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		orders, err := client.GetOrders("")
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching orders: %v", err)}
		}
		return ordersMsg{orders: orders}
	}
}

// fetchOrderDetails retrieves details for a specific order
func fetchOrderDetails(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		order, err := client.GetOrder(id)
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching order details: %v", err)}
		}
		return orderDetailMsg{order: *order}
	}
}

func fetchStats(client *ApiClient) tea.Cmd {
	return func() tea.Msg {
		stats, err := client.GetStats()
		if err != nil {
			return errorMsg{err: fmt.Sprintf("Error fetching stats: %v", err)}
		}
		return statsMsg{stats: *stats}
	}
}

func acceptOrder(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.AcceptOrder(id, defaultEstimate); err != nil {
			return errorMsg{err: err.Error()}
		}
		return confirmMsg{message: fmt.Sprintf("Order %s accepted (%d min)", id, defaultEstimate)}
	}
}

func rejectOrder(client *ApiClient, id string) tea.Cmd {
	return func() tea.Msg {
		if err := client.RejectOrder(id, "Rejected from admin console"); err != nil {
			return errorMsg{err: err.Error()}
		}
		return confirmMsg{message: fmt.Sprintf("Order %s rejected", id)}
	}
}

func advanceOrder(client *ApiClient, id, status string) tea.Cmd {
	return func() tea.Msg {
		if _, err := client.UpdateStatus(id, status); err != nil {
			return errorMsg{err: err.Error()}
		}
		return confirmMsg{message: fmt.Sprintf("Order %s is now %s", id, status)}
	}
}

// convertOrdersToItems converts API orders to list items
func convertOrdersToItems(orders []Order) []list.Item {
	items := make([]list.Item, len(orders))
	for i, order := range orders {
		items[i] = orderItem{
			id:     order.OrderID,
			title:  fmt.Sprintf("%s (%s)", order.OrderID, order.CustomerName),
			desc:   fmt.Sprintf("%d items - %.2f - Status: %s", len(order.Items), order.TotalAmount, order.Status),
			status: order.Status,
		}
	}
	return items
}

func statsRows(s Stats) []table.Row {
	row := func(name string, n int64) table.Row {
		return table.Row{name, strconv.FormatInt(n, 10)}
	}
	return []table.Row{
		row("Today", s.TotalToday),
		row("Pending", s.Pending),
		row("Confirmed", s.Confirmed),
		row("Preparing", s.Preparing),
		row("Ready", s.Ready),
		row("Out for delivery", s.OutForDelivery),
		row("Delivered", s.Delivered),
		row("Cancelled", s.Cancelled),
	}
}

// orderDetailView creates a detailed view of an order
func orderDetailView(order Order) string {
	view := titleStyle.Render(fmt.Sprintf("Order %s", order.OrderID)) + "\n\n"
	view += fmt.Sprintf("Customer: %s (%s)\n", order.CustomerName, order.CustomerPhone)
	view += fmt.Sprintf("Address: %s\n", order.CustomerAddress)
	view += fmt.Sprintf("Status: %s\n", order.Status)
	view += fmt.Sprintf("Placed: %s\n", order.CreatedAt.Local().Format(time.RFC1123))
	if order.EstimatedTime != nil {
		view += fmt.Sprintf("Estimated: %d min\n", *order.EstimatedTime)
	}
	if order.SpecialNotes != "" {
		view += fmt.Sprintf("Notes: %s\n", order.SpecialNotes)
	}

	view += "\nItems:\n"
	for i, item := range order.Items {
		view += fmt.Sprintf("%d. %s (x%d) - %.2f\n", i+1, item.Name, item.Quantity, item.Price)
		if item.Notes != "" {
			view += fmt.Sprintf("   Notes: %s\n", item.Notes)
		}
	}
	view += fmt.Sprintf("\nSubtotal %.2f  Tax %.2f  Delivery %.2f  Total %.2f\n",
		order.Subtotal, order.Tax, order.DeliveryFee, order.TotalAmount)

	view += "\nHistory:\n"
	for _, h := range order.StatusHistory {
		view += fmt.Sprintf("  %s  %-16s %s\n", h.Timestamp.Local().Format("15:04:05"), h.Status, h.Note)
	}

	view += "\nPress 'a' to accept, 'x' to reject, 'n' to advance, 'esc' to go back"

	return view
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running program: %v", err)
		os.Exit(1)
	}
}
