package main

import (
	"fmt"
	"meet-relay/auth"
	"meet-relay/domain"
	"meet-relay/infrastructure/websocket"
	"meet-relay/repositories"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var roomOpts roomOptions

type roomOptions struct {
	Title         string
	Participants  int
	Guests        int
	Public        bool
	GuestDuration time.Duration
	TokenDuration time.Duration
	BaseURL       string
}

// seededUser is one line of the output table.
type seededUser struct {
	User  domain.User
	Role  domain.Role
	Token string
}

var roomCmd = &cobra.Command{
	Use:   "room",
	Short: "Create an active room with a host, participants and guests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if jwtSecret == "" {
			return fmt.Errorf("no signing secret, set --secret or JWT_SECRET")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tokens := auth.NewTokenManager(jwtSecret, roomOpts.TokenDuration)
		room, users, err := seedRoom(repositories.NewDirectoryRepository(db), tokens, roomOpts, time.Now().UTC())
		if err != nil {
			return err
		}
		color.Success.Printf("Room %q created: %s\n", room.Title, room.ID)
		printUsers(room, users, roomOpts.BaseURL)
		return nil
	},
}

func init() {
	flags := roomCmd.Flags()
	flags.StringVar(&roomOpts.Title, "title", "Daily standup", "room title")
	flags.IntVar(&roomOpts.Participants, "participants", 2, "registered participants besides the host")
	flags.IntVar(&roomOpts.Guests, "guests", 1, "guest participants")
	flags.BoolVar(&roomOpts.Public, "public", false, "let any authenticated user in")
	flags.DurationVar(&roomOpts.GuestDuration, "guest-duration", 2*time.Hour, "how long guest accounts stay valid")
	flags.DurationVar(&roomOpts.TokenDuration, "token-duration", 24*time.Hour, "validity of the printed tokens")
	flags.StringVar(&roomOpts.BaseURL, "url", "ws://localhost:8080", "relay base url used to print connect links")
}

// Store is the part of the directory the seeder writes to.
type Store interface {
	SaveUser(user domain.User) error
	SaveRoom(room domain.Room) error
	SaveParticipant(participant domain.Participant) error
}

func seedRoom(store Store, tokens *auth.TokenManager, opts roomOptions, now time.Time) (domain.Room, []seededUser, error) {
	host := domain.User{ID: uuid.New(), Name: "Host", Email: "host@meet.local"}
	room := domain.Room{
		ID:              uuid.New(),
		Title:           opts.Title,
		OwnerID:         host.ID,
		Status:          domain.RoomActive,
		Public:          opts.Public,
		MaxParticipants: 1 + opts.Participants + opts.Guests,
		CreatedAt:       now,
	}
	if err := store.SaveRoom(room); err != nil {
		return domain.Room{}, nil, fmt.Errorf("save room: %w", err)
	}

	type member struct {
		user domain.User
		role domain.Role
	}
	members := []member{{host, domain.RoleHost}}
	for i := 1; i <= opts.Participants; i++ {
		members = append(members, member{domain.User{
			ID:    uuid.New(),
			Name:  fmt.Sprintf("Participant %d", i),
			Email: fmt.Sprintf("participant%d@meet.local", i),
		}, domain.RoleParticipant})
	}
	expiresAt := now.Add(opts.GuestDuration)
	for i := 1; i <= opts.Guests; i++ {
		members = append(members, member{domain.User{
			ID:             uuid.New(),
			Name:           fmt.Sprintf("Guest %d", i),
			Guest:          true,
			GuestExpiresAt: &expiresAt,
		}, domain.RoleGuest})
	}

	seeded := make([]seededUser, 0, len(members))
	for _, m := range members {
		if err := store.SaveUser(m.user); err != nil {
			return domain.Room{}, nil, fmt.Errorf("save user %s: %w", m.user.Name, err)
		}
		if err := store.SaveParticipant(domain.Participant{
			RoomID:       room.ID,
			UserID:       m.user.ID,
			Role:         m.role,
			Status:       domain.StatusJoined,
			JoinedAt:     now,
			LastActiveAt: now,
			AudioEnabled: true,
			VideoEnabled: true,
		}); err != nil {
			return domain.Room{}, nil, fmt.Errorf("save participant %s: %w", m.user.Name, err)
		}
		token, err := tokens.Generate(m.user.ID.String(), []string{string(m.role)})
		if err != nil {
			return domain.Room{}, nil, fmt.Errorf("sign token: %w", err)
		}
		seeded = append(seeded, seededUser{User: m.user, Role: m.role, Token: token})
	}
	return room, seeded, nil
}

func printUsers(room domain.Room, users []seededUser, baseURL string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Role", "User ID", "Token"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, u := range users {
		table.Append([]string{u.User.Name, string(u.Role), u.User.ID.String(), u.Token})
	}
	table.Render()

	if len(users) == 0 {
		return
	}
	first := users[0]
	color.Info.Println("\nConnect the host with:")
	fmt.Println(connectURL(baseURL, websocket.SignalingPath, room.ID, first))
	fmt.Println(connectURL(baseURL, websocket.ChatPath, room.ID, first))
}

func connectURL(baseURL, path string, roomID domain.RoomID, u seededUser) string {
	query := url.Values{"token": {u.Token}, "roomId": {roomID.String()}, "userId": {u.User.ID.String()}}
	return baseURL + path + "?" + query.Encode()
}
