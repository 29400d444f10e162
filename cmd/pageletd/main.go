// Command pageletd is a demonstration pagelet server. It serves a
// TOML-declared catalogue of pagelets: clients fetch configurations over
// HTTP and attach a multiplexed transport over websocket. Remote calls
// are answered with an echo of their arguments.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/linkdata/pagelet"
)

type pageletDef struct {
	Name string   `toml:"name"`
	CSS  []string `toml:"css"`
	JS   []string `toml:"js"`
	RPC  []string `toml:"rpc"`
	View string   `toml:"view"`
	Run  string   `toml:"run"`
}

type catalogue struct {
	Listen   string       `toml:"listen"`
	Pagelets []pageletDef `toml:"pagelet"`
}

type server struct {
	log  zerolog.Logger
	defs map[string]pageletDef
	ids  map[string]string
}

// ServeSubstream handles one peer-opened pagelet channel: it answers the
// registration with a fragment paint and echoes remote call requests.
func (srv *server) ServeSubstream(s *pagelet.Substream) {
	for {
		env, err := s.Receive()
		if err != nil {
			return
		}
		switch env.Kind {
		case pagelet.KindRegistration:
			def, known := srv.defs[env.Name]
			if !known {
				srv.log.Warn().Str("pagelet", env.Name).Msg("registration for unknown pagelet")
				continue
			}
			s.Write(pagelet.Envelope{
				Kind: pagelet.KindFragment,
				Frag: &pagelet.Frag{View: def.View},
			})
		case pagelet.KindRPC:
			if env.Method == "" {
				continue
			}
			args := append([]any{nil}, env.Args...)
			s.Write(pagelet.Envelope{Kind: pagelet.KindRPC, ID: env.ID, Args: args})
		case pagelet.KindGet, pagelet.KindPost:
			srv.log.Info().Str("pagelet", s.Name()).Any("body", env.Body).Msg("form submission")
		}
	}
}

func (srv *server) configs() (cfgs []pagelet.Config) {
	for name, def := range srv.defs {
		cfgs = append(cfgs, pagelet.Config{
			ID:   srv.ids[name],
			Name: def.Name,
			CSS:  def.CSS,
			JS:   def.JS,
			RPC:  def.RPC,
			Run:  def.Run,
			Data: pagelet.WrapFragment(def.View),
		})
	}
	return
}

func main() {
	configFile := flag.String("config", "pageletd.toml", "catalogue file to serve")
	listenAddr := flag.String("listen", "", "address to listen on, overrides the catalogue")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !*debug {
		logger = logger.Level(zerolog.InfoLevel)
	}

	var cat catalogue
	if _, err := toml.DecodeFile(*configFile, &cat); err != nil {
		logger.Fatal().Err(err).Str("file", *configFile).Msg("can't read catalogue")
	}
	if *listenAddr != "" {
		cat.Listen = *listenAddr
	}
	if cat.Listen == "" {
		cat.Listen = ":10112"
	}

	srv := &server{
		log:  logger,
		defs: make(map[string]pageletDef),
		ids:  make(map[string]string),
	}
	for _, def := range cat.Pagelets {
		srv.defs[def.Name] = def
		srv.ids[def.Name] = uuid.NewString()
	}

	router := httprouter.New()
	router.GET("/pagelets", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(srv.configs())
	})
	router.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := pagelet.UpgradeWebsocket(w, r)
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		t := pagelet.NewTransport(conn)
		t.Handler = srv
		t.Logger = logger
		if err := t.Serve(); err != nil {
			logger.Error().Err(err).Msg("transport closed")
		}
	})

	logger.Info().Str("addr", cat.Listen).Int("pagelets", len(srv.defs)).Msg("listening")
	if err := http.ListenAndServe(cat.Listen, router); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
