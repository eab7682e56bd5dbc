package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/domain"
	"taskboard-api/hub"
	"taskboard-api/storage"
)

const broadcastChannel = "taskboard:events"

func main() {
	godotenv.Load()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	usersTableName := os.Getenv("USERS_TABLE")
	if connStr == "" || tasksTableName == "" || usersTableName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tasksTableName, usersTableName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	h := hub.New(logger)

	var taskStore domain.TaskStore = store
	var publisher domain.Publisher = hub.LocalBroadcaster{Hub: h}

	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(redisOptions(redisConn))

		ttl := 30 * time.Second
		if v := os.Getenv("TASK_CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid TASK_CACHE_TTL: %v", err)
			}
			ttl = d
		}
		taskStore = storage.NewCache(store, rc, ttl)

		// With redis in place events travel through pub/sub, so every
		// instance delivers to its own connections.
		publisher = hub.NewRedisBroadcaster(rc, broadcastChannel)
		go hub.RunBridge(context.Background(), logger, rc, broadcastChannel, h)
	}

	scope := domain.ScopeRoom
	if os.Getenv("BROADCAST_SCOPE") == "global" {
		scope = domain.ScopeGlobal
	}
	tasks := domain.NewTaskService(taskStore, publisher, scope, logger)

	var auth *api.Auth
	if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
		audience := os.Getenv("AUTH_AUDIENCE")
		issuer := os.Getenv("AUTH_ISSUER")
		if audience == "" || issuer == "" {
			log.Fatal("missing JWKS auth config")
		}
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewJWKSAuth(jwks, audience, issuer)
	} else {
		secret := os.Getenv("AUTH_SECRET")
		if secret == "" {
			log.Fatal("missing AUTH_SECRET")
		}
		ttl := 7 * 24 * time.Hour
		if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid AUTH_TOKEN_TTL: %v", err)
			}
			ttl = d
		}
		auth = api.NewAuth([]byte(secret), ttl)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.Decompress())

	api.Register(e, tasks, store, auth, h, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions understands both redis URLs and the comma-separated
// host,password,ssl form used by managed caches.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
