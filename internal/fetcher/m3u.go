package fetcher

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/voyagen/channelnav/internal/models"
)

var (
	reTvgName   = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reTvgID     = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgChno   = regexp.MustCompile(`tvg-chno="([^"]*)"`)
	reTvgLogo   = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup     = regexp.MustCompile(`group-title="([^"]*)"`)
	reCommaName = regexp.MustCompile(`,([^\n\r\t]*)$`)
)

var errNoName = errors.New("no name in EXTINF")

// ParseM3U reads an M3U playlist and returns one channel per EXTINF/URL pair.
// The channel number is taken from tvg-chno when it is a positive integer,
// otherwise from the entry's 1-based position in the playlist.
// Entries without a usable name are skipped but still consume a position.
func ParseM3U(r io.Reader) ([]models.Channel, error) {
	var channels []models.Channel
	scanner := bufio.NewScanner(r)
	// Some playlists carry very long EXTINF lines.
	const maxSize = 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxSize)

	var extinf string
	position := int64(0)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(strings.ToUpper(line), "#EXTINF"):
			// A previous EXTINF without a URL line is dropped.
			extinf = line
		case strings.HasPrefix(line, "#"):
			// #EXTM3U, #EXTVLCOPT, #EXTGRP and other directives.
		default:
			if extinf == "" {
				continue
			}
			position++
			ch, err := channelFromEXTINF(extinf, line, position)
			extinf = ""
			if err != nil {
				continue
			}
			channels = append(channels, ch)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return channels, nil
}

func channelFromEXTINF(extinf, url string, position int64) (models.Channel, error) {
	name := channelName(extinf)
	if name == "" {
		return models.Channel{}, errNoName
	}
	number := position
	if s := matchFirst(reTvgChno, extinf); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			number = n
		}
	}
	return models.Channel{
		Number: number,
		Name:   name,
		Logo:   matchFirstPtr(reTvgLogo, extinf),
		URL:    url,
		Group:  matchFirstPtr(reGroup, extinf),
	}, nil
}

// channelName prefers tvg-name, then the display title after the comma, then tvg-id.
func channelName(extinf string) string {
	if n := matchFirst(reTvgName, extinf); n != "" {
		return n
	}
	if n := matchFirst(reCommaName, extinf); n != "" {
		return n
	}
	return matchFirst(reTvgID, extinf)
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func matchFirstPtr(re *regexp.Regexp, s string) *string {
	v := matchFirst(re, s)
	if v == "" {
		return nil
	}
	return &v
}
