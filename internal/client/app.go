package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DisplayLayout is how history timestamps are shown to the user.
const DisplayLayout = "2006-01-02 03:04 PM"

const helpText = `Commands:
  /signup <username> <password>   create an account
  /login <username> <password>    log in
  /guest                          continue as guest (nothing is saved)
  /history                        list saved chats
  /load <n>                       open chat number n from /history
  /clear                          clear the current conversation
  /delete                         delete all saved chat history
  /yes, /cancel                   answer a pending confirmation
  /logout                         end the session
  /quit                           exit
Anything else is sent to the assistant.`

// App is the interactive loop. All state lives in Session; App only holds
// collaborators.
type App struct {
	client  *Client
	session *Session
	loc     *time.Location
	out     io.Writer
	save    func(*Session) error
}

func NewApp(c *Client, s *Session, loc *time.Location, out io.Writer, save func(*Session) error) *App {
	if loc == nil {
		loc = time.UTC
	}
	if save == nil {
		save = func(*Session) error { return nil }
	}
	return &App{client: c, session: s, loc: loc, out: out, save: save}
}

func (a *App) Session() *Session {
	return a.session
}

func (a *App) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(a.out, "Disclaimer: do not enter sensitive or personal information. This assistant is not a substitute for professional medical advice.")
	a.renderHeader()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		quit := a.Handle(ctx, scanner.Text())
		if err := a.save(a.session); err != nil {
			a.banner("failed to save session: %v", err)
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one input line and reports whether the user asked to quit.
func (a *App) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		a.chat(ctx, line)
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(a.out, helpText)
	case "/signup":
		a.signup(ctx, args)
	case "/login":
		a.login(ctx, args)
	case "/guest":
		a.session.SignOut()
		a.session.SignInGuest()
		fmt.Fprintln(a.out, "Logged in as guest!")
	case "/logout":
		a.session.SignOut()
		fmt.Fprintln(a.out, "Logged out.")
	case "/history":
		a.loadChatSessions(ctx)
		a.renderChatSessions()
	case "/load":
		a.loadChat(ctx, args)
	case "/clear":
		a.session.Pending = ConfirmClearChat
		fmt.Fprintln(a.out, "Are you sure you want to clear the chat? (/yes or /cancel)")
	case "/delete":
		if !a.registered() {
			a.banner("Chat history is only available to logged in users.")
			return false
		}
		a.session.Pending = ConfirmDeleteHistory
		fmt.Fprintln(a.out, "Are you sure you want to delete all chat history? (/yes or /cancel)")
	case "/yes":
		a.confirm(ctx)
	case "/cancel":
		a.session.Pending = ConfirmNone
	default:
		a.banner("Unknown command %s. Type /help for the list of commands.", cmd)
	}
	return false
}

func (a *App) registered() bool {
	return a.session.LoggedIn() && !a.session.IsGuest
}

func (a *App) signup(ctx context.Context, args []string) {
	if len(args) != 2 {
		a.banner("Usage: /signup <username> <password>")
		return
	}
	err := a.client.Register(ctx, args[0], args[1])
	if err == nil {
		fmt.Fprintln(a.out, "Signup successful! Please log in.")
		return
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status == 400 && strings.Contains(apiErr.Detail, "Username already exists"):
		a.banner("Signup failed. Username already exists. Please choose a different username.")
	case errors.As(err, &apiErr) && apiErr.Status == 400:
		a.banner("Signup failed. Please check your details and try again.")
	case errors.As(err, &apiErr):
		a.banner("An unexpected error occurred during signup. Please try again later.")
	default:
		a.banner("Unable to connect to the server. Please check your connection.")
	}
}

func (a *App) login(ctx context.Context, args []string) {
	if len(args) != 2 {
		a.banner("Usage: /login <username> <password>")
		return
	}
	token, err := a.client.Login(ctx, args[0], args[1])
	if err != nil {
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == 422:
			a.banner("Invalid Username or Password")
		case errors.As(err, &apiErr):
			a.banner("An error occurred during login. Please try again.")
		default:
			a.banner("Unable to connect to the server. Please check your connection.")
		}
		return
	}

	a.session.SignOut()
	a.session.SignIn(args[0], token)
	a.loadChatSessions(ctx)
	a.renderHeader()
}

func (a *App) chat(ctx context.Context, query string) {
	if !a.session.LoggedIn() {
		a.banner("Please log in to access the chatbot (/login, /signup or /guest).")
		return
	}

	a.session.AddMessage(RoleUser, query)
	a.renderMessage(a.session.Messages[len(a.session.Messages)-1])

	answer := "Unable to process your request at the moment. Please try again later."
	res, err := a.client.Chat(ctx, a.session.Bearer(), query)
	if err == nil {
		answer = res.Response
	}
	a.session.AddMessage(RoleAssistant, answer)
	a.renderMessage(a.session.Messages[len(a.session.Messages)-1])
}

// loadChatSessions refreshes the history refs. Guests have none.
func (a *App) loadChatSessions(ctx context.Context) {
	if !a.registered() {
		a.session.ChatSessions = nil
		return
	}

	history, err := a.client.History(ctx, a.session.AuthToken)
	if err != nil {
		a.banner("Unable to load chat history: %v", err)
		a.session.ChatSessions = nil
		return
	}
	a.session.ChatSessions = ChatRefs(history, a.loc)
}

// ChatRefs flattens grouped history newest first and drops entries whose
// display label repeats an earlier one.
func ChatRefs(history map[string][]HistoryEntry, loc *time.Location) []ChatRef {
	dates := make([]string, 0, len(history))
	for d := range history {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	var refs []ChatRef
	seen := make(map[string]bool)
	for _, d := range dates {
		for _, e := range history[d] {
			label := FormatTimestamp(e.Timestamp, loc)
			if e.ID == 0 || seen[label] {
				continue
			}
			seen[label] = true
			refs = append(refs, ChatRef{ID: e.ID, Label: label})
		}
	}
	return refs
}

func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "Unknown Date"
	}
	return t.In(loc).Format(DisplayLayout)
}

func (a *App) loadChat(ctx context.Context, args []string) {
	if !a.registered() {
		a.banner("Chat history is only available to logged in users.")
		return
	}
	if len(args) != 1 {
		a.banner("Usage: /load <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(a.session.ChatSessions) {
		a.banner("No chat number %s. Use /history to list chats.", args[0])
		return
	}

	ref := a.session.ChatSessions[n-1]
	entry, err := a.client.Entry(ctx, a.session.AuthToken, ref.ID)
	if err != nil {
		a.banner("Failed to load chat messages.")
		return
	}

	id := ref.ID
	a.session.SelectedChat = &id
	a.session.Messages = []Message{
		{Role: RoleUser, Content: entry.Query},
		{Role: RoleAssistant, Content: entry.Response},
	}
	for _, m := range a.session.Messages {
		a.renderMessage(m)
	}
}

func (a *App) confirm(ctx context.Context) {
	pending := a.session.Pending
	a.session.Pending = ConfirmNone

	switch pending {
	case ConfirmClearChat:
		a.session.ClearChat()
		fmt.Fprintln(a.out, "Chat cleared successfully.")
	case ConfirmDeleteHistory:
		if err := a.client.DeleteHistory(ctx, a.session.AuthToken); err != nil {
			a.banner("Failed to delete chat history. Please try again.")
			return
		}
		a.session.ClearHistory()
		fmt.Fprintln(a.out, "Chat history deleted successfully!")
	default:
		a.banner("Nothing to confirm.")
	}
}

func (a *App) banner(format string, args ...any) {
	fmt.Fprintf(a.out, "[!] "+format+"\n", args...)
}

func (a *App) renderHeader() {
	if !a.session.LoggedIn() {
		fmt.Fprintln(a.out, "Please log in to access the chatbot. Type /help for commands.")
		return
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", a.session.Username)
	a.renderChatSessions()
	for _, m := range a.session.Messages {
		a.renderMessage(m)
	}
}

func (a *App) renderChatSessions() {
	if len(a.session.ChatSessions) == 0 {
		return
	}
	fmt.Fprintln(a.out, "Chat history by date:")
	for i, ref := range a.session.ChatSessions {
		fmt.Fprintf(a.out, "  %d. Chat on %s\n", i+1, ref.Label)
	}
}

func (a *App) renderMessage(m Message) {
	name := "You"
	if m.Role == RoleAssistant {
		name = "HealthBot"
	}
	fmt.Fprintf(a.out, "%s: %s\n", name, m.Content)
}
