// Command client is an interactive terminal client for the auth API. It
// mirrors the browser experience: a cookie-backed session and an inactivity
// watchdog that warns before logging the user out.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/avralex/authgate/internal/client"
	"github.com/avralex/authgate/internal/idle"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "auth API origin")
	warnAfter := flag.Duration("warn-after", time.Minute, "inactivity before the logout warning")
	logoutAfter := flag.Duration("logout-after", 2*time.Minute, "inactivity before automatic logout")
	flag.Parse()

	api, err := client.New(*server)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app := &app{
		api:         api,
		reader:      bufio.NewReader(os.Stdin),
		warnAfter:   *warnAfter,
		logoutAfter: *logoutAfter,
	}
	app.run()
}

type app struct {
	api         *client.Client
	reader      *bufio.Reader
	monitor     *idle.Monitor
	warnAfter   time.Duration
	logoutAfter time.Duration
}

func (a *app) run() {
	fmt.Println("commands: register, login, confirm, me, admin, stay, logout, quit")

	for {
		fmt.Print("> ")
		line, err := a.reader.ReadString('\n')
		if err != nil {
			a.stopMonitor()
			return
		}

		// Any command counts as activity for the idle watchdog.
		if a.monitor != nil {
			a.monitor.Activity()
		}

		switch strings.TrimSpace(line) {
		case "register":
			a.register()
		case "login":
			a.login()
		case "confirm":
			a.confirm()
		case "me":
			a.me()
		case "admin":
			a.admin()
		case "stay":
			a.stay()
		case "logout":
			a.logout()
		case "quit", "exit":
			a.stopMonitor()
			return
		case "":
		default:
			fmt.Println("unknown command")
		}
	}
}

func (a *app) register() {
	email, password, ok := a.credentials()
	if !ok {
		return
	}

	if err := a.api.Register(context.Background(), email, password); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Registered. Check the server log for your confirmation link.")
}

func (a *app) login() {
	email, password, ok := a.credentials()
	if !ok {
		return
	}

	fmt.Print("Remember me? (y/N): ")
	answer, _ := a.reader.ReadString('\n')
	rememberMe := strings.EqualFold(strings.TrimSpace(answer), "y")

	user, err := a.api.Login(context.Background(), email, password, rememberMe)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Printf("Logged in as %s (roles: %s)\n", user.Email, strings.Join(user.Roles, ", "))
	a.startMonitor()
}

func (a *app) confirm() {
	userID := a.prompt("User ID")
	token := a.prompt("Token")

	if err := a.api.ConfirmEmail(context.Background(), userID, token); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Email confirmed.")
}

func (a *app) me() {
	user, err := a.api.Me(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s (%s), roles: %s\n", user.Email, user.ID, strings.Join(user.Roles, ", "))
}

func (a *app) admin() {
	payload, err := a.api.AdminData(context.Background())
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(payload["message"])
}

func (a *app) stay() {
	if a.monitor == nil {
		fmt.Println("not logged in")
		return
	}
	a.monitor.StayLoggedIn()
	fmt.Println("Session extended.")
}

func (a *app) logout() {
	a.stopMonitor()
	if err := a.api.Logout(context.Background()); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("Logged out.")
}

func (a *app) credentials() (string, string, bool) {
	email := a.prompt("Email")
	if email == "" {
		return "", "", false
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Println(err)
		return "", "", false
	}

	return email, string(password), true
}

func (a *app) prompt(label string) string {
	fmt.Printf("%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func (a *app) startMonitor() {
	a.stopMonitor()

	monitor, err := idle.NewMonitor(
		idle.Config{WarnAfter: a.warnAfter, LogoutAfter: a.logoutAfter},
		idle.Callbacks{
			OnWarning: func() {
				fmt.Println("\nStill there? Type 'stay' to keep your session, or you will be logged out.")
			},
			OnLogout: func() {
				if err := a.api.Logout(context.Background()); err != nil {
					fmt.Println("\nauto-logout failed:", err)
					return
				}
				fmt.Println("\nLogged out due to inactivity.")
			},
		},
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := monitor.Start(); err != nil {
		fmt.Println(err)
		return
	}
	a.monitor = monitor
}

func (a *app) stopMonitor() {
	if a.monitor != nil {
		a.monitor.Stop()
		a.monitor = nil
	}
}
