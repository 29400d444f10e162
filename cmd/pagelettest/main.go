// Command pagelettest connects a pagelet runtime to a pageletd server,
// configures every advertised pagelet and prints lifecycle events as they
// arrive. Useful for eyeballing a server's catalogue.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/linkdata/pagelet"
)

// printRenderer writes injected views to stdout instead of a document.
type printRenderer struct{ name string }

func (r *printRenderer) Load(ctx context.Context, asset pagelet.AssetDescriptor) error {
	if strings.HasPrefix(asset.URL, "http") {
		req, err := http.NewRequestWithContext(ctx, "GET", asset.URL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
	}
	return nil
}

func (r *printRenderer) Inject(view string) bool {
	fmt.Printf("%s: %s\n", r.name, view)
	return true
}

func (r *printRenderer) Clear(removePlaceholder bool) {}

// nopSandbox discards client code.
type nopSandbox struct{}

func (nopSandbox) Create() (pagelet.Container, error)            { return struct{}{}, nil }
func (nopSandbox) Execute(c pagelet.Container, code string) error { return nil }
func (nopSandbox) Kill(c pagelet.Container)                       {}

func fetchConfigs(base string) (cfgs []pagelet.Config, err error) {
	resp, err := http.Get(base + "/pagelets")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	err = json.NewDecoder(resp.Body).Decode(&cfgs)
	return
}

func main() {
	wait := flag.Duration("wait", time.Second*5, "how long to listen for events")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("missing required argument: host:port of upstream pagelet server")
	}
	addr := flag.Arg(0)

	cfgs, err := fetchConfigs("http://" + addr)
	if err != nil {
		log.Fatalln(err)
	}

	conn, err := pagelet.DialWebsocket("ws://" + addr + "/ws")
	if err != nil {
		log.Fatalln(err)
	}
	t := pagelet.NewTransport(conn)
	go t.Serve()
	defer t.Close()

	page := pagelet.NewRegistry()
	pool := pagelet.NewControllerPool(len(cfgs))

	var controllers []*pagelet.Controller
	for _, cfg := range cfgs {
		cfg := cfg
		for _, event := range []string{"configured", "render", "initialise", "error", "destroy"} {
			scoped := cfg.Name + pagelet.ScopeSeparator + event
			page.On(scoped, func(args ...any) {
				fmt.Printf("event %s (%d args)\n", scoped, len(args)-1)
			})
		}
		c := pagelet.NewController(t, &printRenderer{name: cfg.Name}, nopSandbox{}, page)
		c.Pool = pool
		if err := c.Configure(cfg); err != nil {
			log.Fatalln(err)
		}
		for _, method := range cfg.RPC {
			method := method
			c.Call(method, []any{"ping"}, func(args ...any) {
				fmt.Printf("%s.%s replied with %d args\n", cfg.Name, method, len(args))
			})
		}
		controllers = append(controllers, c)
	}

	time.Sleep(*wait)

	for _, c := range controllers {
		c.Destroy(false)
	}
	fmt.Printf("recycled %d of %d controllers\n", pool.Len(), len(controllers))
}
