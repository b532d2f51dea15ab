package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"MovieTrackr/internal/auth"
	"MovieTrackr/internal/service"
)

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	DBPing func(context.Context) error

	Auth          *service.AuthService
	Users         *service.UsersService
	Profile       *service.ProfileService
	Lists         *service.ListService
	Reminders     *service.ReminderService
	Friends       *service.FriendsService
	Discussions   *service.DiscussionService
	Notifications *service.NotificationService
	Movies        service.MovieLookup
	MovieSearch   service.MovieSearcher

	CookieCodec  auth.CookieCodec
	TokenCodec   auth.TokenCodec
	CookieSecure bool
	SessionTTL   time.Duration
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:           logger,
		isProd:           opts.IsProd,
		dbPing:           opts.DBPing,
		authSvc:          opts.Auth,
		usersSvc:         opts.Users,
		profileSvc:       opts.Profile,
		listsSvc:         opts.Lists,
		remindersSvc:     opts.Reminders,
		friendsSvc:       opts.Friends,
		discussionsSvc:   opts.Discussions,
		notificationsSvc: opts.Notifications,
		movies:           opts.Movies,
		movieSearch:      opts.MovieSearch,
		cookieCodec:      opts.CookieCodec,
		tokenCodec:       opts.TokenCodec,
		cookieSecure:     opts.CookieSecure,
		sessionTTL:       opts.SessionTTL,
		loginLimiter:     newLoginLimiter(),
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)

	if api.authSvc == nil {
		apiMux.HandleFunc("POST /v1/auth/register", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/auth/login", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/auth/google", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/auth/apple", handleNotImplemented)
		apiMux.HandleFunc("POST /v1/auth/logout", handleNotImplemented)
		apiMux.HandleFunc("GET /v1/users/me", handleNotImplemented)
	} else {
		apiMux.HandleFunc("POST /v1/auth/register", api.handleAuthRegister)
		apiMux.HandleFunc("POST /v1/auth/login", api.handleAuthLogin)
		apiMux.HandleFunc("POST /v1/auth/google", api.handleAuthLoginGoogle)
		apiMux.HandleFunc("POST /v1/auth/apple", api.handleAuthLoginApple)
		apiMux.HandleFunc("POST /v1/auth/logout", api.requireAuth(api.handleAuthLogout))
		apiMux.HandleFunc("GET /v1/users/me", api.requireAuth(api.handleUsersMe))
		apiMux.HandleFunc("DELETE /v1/users/me", api.requireAuth(api.handleUsersMeDelete))
		if api.profileSvc != nil {
			apiMux.HandleFunc("PATCH /v1/users/me", api.requireAuth(api.handleUsersMeUpdate))
		}
		if api.usersSvc != nil {
			apiMux.HandleFunc("GET /v1/users/search", api.requireAuth(api.handleUsersSearch))
		}

		if api.listsSvc != nil {
			apiMux.HandleFunc("GET /v1/lists", api.requireAuth(api.handleListsGetAll))
			apiMux.HandleFunc("POST /v1/lists", api.requireAuth(api.handleListsCreate))
			apiMux.HandleFunc("GET /v1/lists/{kind}", api.requireAuth(api.handleListsGet))
			apiMux.HandleFunc("POST /v1/lists/{kind}/entries", api.requireAuth(api.handleListsAddEntry))
			apiMux.HandleFunc("PATCH /v1/lists/{kind}/entries/{movieID}", api.requireAuth(api.handleListsUpdateEntry))
			apiMux.HandleFunc("DELETE /v1/lists/{kind}/entries/{movieID}", api.requireAuth(api.handleListsRemoveEntry))
			apiMux.HandleFunc("POST /v1/lists/{kind}/entries/{movieID}/move", api.requireAuth(api.handleListsMoveEntry))
			apiMux.HandleFunc("GET /v1/users/{id}/lists", api.requireAuth(api.handleFriendLists))
		}

		if api.remindersSvc != nil {
			apiMux.HandleFunc("GET /v1/reminders", api.requireAuth(api.handleRemindersList))
			apiMux.HandleFunc("POST /v1/reminders", api.requireAuth(api.handleRemindersCreate))
			apiMux.HandleFunc("GET /v1/reminders/upcoming", api.requireAuth(api.handleRemindersUpcoming))
			apiMux.HandleFunc("GET /v1/reminders/{id}", api.requireAuth(api.handleRemindersGet))
			apiMux.HandleFunc("PATCH /v1/reminders/{id}", api.requireAuth(api.handleRemindersUpdate))
			apiMux.HandleFunc("DELETE /v1/reminders/{id}", api.requireAuth(api.handleRemindersDelete))
		}

		if api.friendsSvc != nil {
			apiMux.HandleFunc("GET /v1/friends", api.requireAuth(api.handleFriendsList))
			apiMux.HandleFunc("GET /v1/friends/requests", api.requireAuth(api.handleFriendsPending))
			apiMux.HandleFunc("POST /v1/friends/requests", api.requireAuth(api.handleFriendsCreateRequest))
			apiMux.HandleFunc("POST /v1/friends/requests/{id}/accept", api.requireAuth(api.handleFriendsAccept))
			apiMux.HandleFunc("POST /v1/friends/requests/{id}/reject", api.requireAuth(api.handleFriendsReject))
			apiMux.HandleFunc("DELETE /v1/friends/{id}", api.requireAuth(api.handleFriendsRemove))
		}

		if api.discussionsSvc != nil {
			apiMux.HandleFunc("GET /v1/discussions", api.requireAuth(api.handleDiscussionsList))
			apiMux.HandleFunc("POST /v1/discussions", api.requireAuth(api.handleDiscussionsCreate))
			apiMux.HandleFunc("GET /v1/discussions/{id}", api.requireAuth(api.handleDiscussionsGet))
			apiMux.HandleFunc("PATCH /v1/discussions/{id}", api.requireAuth(api.handleDiscussionsUpdate))
			apiMux.HandleFunc("DELETE /v1/discussions/{id}", api.requireAuth(api.handleDiscussionsDelete))
			apiMux.HandleFunc("POST /v1/discussions/{id}/like", api.requireAuth(api.handleDiscussionsLike))
			apiMux.HandleFunc("POST /v1/discussions/{id}/comments", api.requireAuth(api.handleCommentsAdd))
			apiMux.HandleFunc("PATCH /v1/discussions/{id}/comments/{commentID}", api.requireAuth(api.handleCommentsEdit))
			apiMux.HandleFunc("DELETE /v1/discussions/{id}/comments/{commentID}", api.requireAuth(api.handleCommentsDelete))
			apiMux.HandleFunc("POST /v1/discussions/{id}/comments/{commentID}/like", api.requireAuth(api.handleCommentsLike))
		}

		if api.notificationsSvc != nil {
			apiMux.HandleFunc("POST /v1/notifications/token", api.requireAuth(api.handleNotificationsTokenUpsert))
			apiMux.HandleFunc("DELETE /v1/notifications/token", api.requireAuth(api.handleNotificationsTokenDelete))
		}

		if api.movieSearch != nil {
			apiMux.HandleFunc("GET /v1/movies/search", api.requireAuth(api.handleMoviesSearch))
		}
		if api.movies != nil {
			apiMux.HandleFunc("GET /v1/movies/{id}", api.requireAuth(api.handleMoviesGet))
		}
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := apiMux.Handler(r)
		if pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	authSvc          *service.AuthService
	usersSvc         *service.UsersService
	profileSvc       *service.ProfileService
	listsSvc         *service.ListService
	remindersSvc     *service.ReminderService
	friendsSvc       *service.FriendsService
	discussionsSvc   *service.DiscussionService
	notificationsSvc *service.NotificationService
	movies           service.MovieLookup
	movieSearch      service.MovieSearcher

	cookieCodec  auth.CookieCodec
	tokenCodec   auth.TokenCodec
	cookieSecure bool
	sessionTTL   time.Duration

	loginLimiter *loginLimiter
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
