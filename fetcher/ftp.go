package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"srcpkg/pklog"
)

// fetchFTP performs a minimal anonymous FTP RETR. No FTP client library was
// found anywhere in the retrieved corpus (only net/http-based fetchers are
// used by the pack's repositories), so this is built directly on net/textproto
// per the standard active/passive FTP control-connection protocol — the same
// level the corpus reaches for raw TCP protocols it has no library for.
func fetchFTP(ctx context.Context, rawURL, destination string, timeout time.Duration, logger pklog.LibraryLogger) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":21"
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	tp := textproto.NewConn(conn)

	if _, _, err := tp.ReadResponse(220); err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp greeting: %w", err)}
	}

	user := "anonymous"
	pass := "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	if err := tp.PrintfLine("USER %s", user); err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	if _, _, err := tp.ReadResponse(331); err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp USER: %w", err)}
	}
	if err := tp.PrintfLine("PASS %s", pass); err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	if _, _, err := tp.ReadResponse(230); err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp PASS: %w", err)}
	}

	if err := tp.PrintfLine("TYPE I"); err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	if _, _, err := tp.ReadResponse(200); err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp TYPE: %w", err)}
	}

	if err := tp.PrintfLine("PASV"); err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	_, pasvLine, err := tp.ReadResponse(227)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp PASV: %w", err)}
	}
	dataHost, dataPort, err := parsePASV(pasvLine)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}

	dataConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", dataHost, dataPort))
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer dataConn.Close()
	dataConn.SetDeadline(time.Now().Add(timeout))

	if err := tp.PrintfLine("RETR %s", u.Path); err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	if _, _, err := tp.ReadResponse(150); err != nil {
		return &NetworkError{URL: rawURL, Err: fmt.Errorf("ftp RETR: %w", err)}
	}

	out, err := os.Create(destination)
	if err != nil {
		return err
	}
	reader := bufio.NewReader(dataConn)
	if _, err := reader.WriteTo(out); err != nil {
		out.Close()
		os.Remove(destination)
		return &NetworkError{URL: rawURL, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(destination)
		return &NetworkError{URL: rawURL, Err: err}
	}

	if _, _, err := tp.ReadResponse(226); err != nil {
		logger.Warn("fetcher: ftp transfer-complete confirmation missing for %s: %v", rawURL, err)
	}

	logger.Info("fetcher: downloaded %s -> %s", rawURL, destination)
	return nil
}

// parsePASV extracts the data-connection host:port from a 227 response of
// the form "227 Entering Passive Mode (h1,h2,h3,h4,p1,p2).".
func parsePASV(line string) (string, int, error) {
	open := strings.Index(line, "(")
	close := strings.Index(line, ")")
	if open < 0 || close < 0 || close < open {
		return "", 0, fmt.Errorf("malformed PASV response: %s", line)
	}
	parts := strings.Split(line[open+1:close], ",")
	if len(parts) != 6 {
		return "", 0, fmt.Errorf("malformed PASV response: %s", line)
	}
	host := strings.Join(parts[0:4], ".")
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", 0, fmt.Errorf("malformed PASV port in: %s", line)
	}
	return host, p1*256 + p2, nil
}
