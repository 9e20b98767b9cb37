package main

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// backendService is the mDNS service type the ingestion server announces.
const backendService = "_nooforge._tcp"

// discoverBackend runs one mDNS query and returns the base URL of the first
// ingestion server that answers, or "" when none does before timeout.
func discoverBackend(ctx context.Context, timeout time.Duration) (string, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entriesCh {
			u := backendURLFromEntry(entry)
			if u == "" {
				continue
			}
			select {
			case found <- u:
			default:
			}
		}
	}()

	params := mdns.DefaultParams(backendService)
	params.Timeout = timeout
	params.Entries = entriesCh
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entriesCh)
	<-done

	select {
	case u := <-found:
		return u, nil
	default:
		return "", err
	}
}

// watchBackend queries periodically until ctx ends and reports each URL
// that differs from the last one reported.
func watchBackend(ctx context.Context, interval time.Duration, onFound func(string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		u, err := discoverBackend(ctx, 3*time.Second)
		if err != nil && ctx.Err() == nil {
			Log.Debug("mdns: query failed", "error", err)
		}
		if u != "" && u != last {
			Log.Info("mdns: backend discovered", "url", u)
			last = u
			onFound(u)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// backendURLFromEntry builds a base URL from a service entry. A "url=" TXT
// record wins over the announced address.
func backendURLFromEntry(entry *mdns.ServiceEntry) string {
	if entry == nil {
		return ""
	}
	for _, txt := range entry.InfoFields {
		if u, ok := strings.CutPrefix(txt, "url="); ok && u != "" {
			return strings.TrimRight(u, "/")
		}
	}

	var ip net.IP
	switch {
	case entry.AddrV4 != nil:
		ip = entry.AddrV4
	case entry.AddrV6 != nil:
		ip = entry.AddrV6
	default:
		return ""
	}
	if entry.Port <= 0 {
		return ""
	}
	return "http://" + net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port))
}
