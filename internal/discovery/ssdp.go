package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	ssdpAddr      = "239.255.255.250:1900"
	ssdpMX        = 2
	ssdpTTL       = 2
	maxDatagram   = 2048
	searchRepeats = 2
)

var ErrMalformedUSN = errors.New("discovery: malformed usn")

// Response is one SSDP answer.
type Response struct {
	ST       string
	USN      string
	Location string
	Server   string
}

// Endpoint parses the ColorTouch USN and LOCATION into an Endpoint.
//
// The USN looks like "ecp:00:23:a7:3a:b2:72:name:Living%20Room:type:residential".
func (r Response) Endpoint() (Endpoint, error) {
	id, name, typ, err := ParseUSN(r.USN)
	if err != nil {
		return Endpoint{}, err
	}
	loc, err := url.Parse(r.Location)
	if err != nil || loc.Host == "" {
		return Endpoint{}, fmt.Errorf("discovery: bad location %q", r.Location)
	}
	return Endpoint{
		ID:   id,
		Host: loc.Host,
		Name: name,
		Type: typ,
		USN:  r.USN,
	}, nil
}

// ParseUSN extracts the device id, name and type from a ColorTouch USN.
func ParseUSN(usn string) (id, name, typ string, err error) {
	ecp := strings.Index(usn, "ecp:")
	nameAt := strings.Index(usn, ":name:")
	typeAt := strings.Index(usn, ":type:")
	if ecp < 0 || nameAt < ecp || typeAt < nameAt {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedUSN, usn)
	}

	id = strings.ReplaceAll(usn[ecp+len("ecp:"):nameAt], ":", "")
	rawName := usn[nameAt+len(":name:") : typeAt]
	if name, err = url.PathUnescape(rawName); err != nil {
		name = rawName
	}
	typ = usn[typeAt+len(":type:"):]
	if id == "" {
		return "", "", "", fmt.Errorf("%w: empty id in %q", ErrMalformedUSN, usn)
	}
	return id, name, typ, nil
}

// SSDPSearcher multicasts M-SEARCH requests on every multicast capable
// IPv4 interface and gathers unicast answers.
type SSDPSearcher struct {
	// Interfaces limits the search to these interfaces. Empty means all.
	Interfaces []net.Interface
}

// Search sends the request and collects responses until timeout or ctx ends.
func (s *SSDPSearcher) Search(ctx context.Context, target string, timeout time.Duration) ([]Response, error) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("opening ssdp socket: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ssdpTTL); err != nil {
		return nil, fmt.Errorf("setting multicast ttl: %w", err)
	}

	dst, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}
	msg := searchRequest(target)

	sent := 0
	for _, ifi := range s.interfaces() {
		if err := pc.SetMulticastInterface(&ifi); err != nil {
			continue
		}
		for i := 0; i < searchRepeats; i++ {
			if _, err := pc.WriteTo(msg, nil, dst); err == nil {
				sent++
			}
		}
	}
	if sent == 0 {
		// No usable interface list; let the kernel pick the route.
		if _, err := conn.WriteTo(msg, dst); err != nil {
			return nil, fmt.Errorf("sending m-search: %w", err)
		}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var responses []Response
	buf := make([]byte, maxDatagram)
	for {
		n, _, _, err := pc.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return responses, nil
			}
			return responses, fmt.Errorf("reading ssdp response: %w", err)
		}
		r, ok := parseResponse(buf[:n])
		if !ok || !(strings.EqualFold(r.ST, target) || strings.Contains(r.USN, "ecp:")) {
			continue
		}
		responses = append(responses, r)
	}
}

func (s *SSDPSearcher) interfaces() []net.Interface {
	if len(s.Interfaces) > 0 {
		return s.Interfaces
	}
	all, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var usable []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			usable = append(usable, ifi)
		}
	}
	return usable
}

func searchRequest(target string) []byte {
	return []byte("M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + ssdpAddr + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		fmt.Sprintf("MX: %d\r\n", ssdpMX) +
		"ST: " + target + "\r\n\r\n")
}

// parseResponse reads an SSDP answer, which is an HTTP response over UDP.
func parseResponse(b []byte) (Response, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return Response{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Response{}, false
	}
	return Response{
		ST:       resp.Header.Get("ST"),
		USN:      resp.Header.Get("USN"),
		Location: resp.Header.Get("Location"),
		Server:   resp.Header.Get("Server"),
	}, true
}
