// Package didl scans DIDL-Lite browse responses into media object
// records. It deliberately avoids encoding/xml: real servers emit
// non-conformant payloads that a strict parser rejects, and the scanner
// must hold at most one element in memory at a time. Elements are
// located by tag name, attributes by name scan, and every absent field
// has a documented tolerant default.
package didl

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikey-austin/upnpcat/internal/wire"
	"github.com/mikey-austin/upnpcat/pkg/dlna"
)

// maxElementBytes bounds a single container/item element. Anything
// larger is treated as a structurally broken document.
const maxElementBytes = 16 * 1024

// Options control quirk handling during a scan.
type Options struct {
	// MaxCount is the hard stop on scanned elements (memory bound).
	MaxCount int
	// ShowEmpty keeps items whose declared size is zero. Servers use
	// zero-size placeholders; they are hidden by default.
	ShowEmpty bool
	// StrictParentID drops entries whose reported parentID differs from
	// the browsed container. Tolerated by default: several servers are
	// internally inconsistent here.
	StrictParentID bool
	// AssumeSearchable is the default for containers that omit the
	// searchable attribute. Off by default.
	AssumeSearchable bool
}

// Scan consumes the decoded browse response body and extracts up to
// MaxCount media objects in document order. parentID is the id of the
// browsed container. On a structurally unparsable element the partial
// result is returned together with a ProtocolError: guessing at
// truncated XML risks fabricating records.
func Scan(src wire.ByteSource, parentID string, opts Options) (dlna.BrowseResult, error) {
	if opts.MaxCount <= 0 {
		opts.MaxCount = 100
	}
	var result dlna.BrowseResult
	scanned := 0
	for scanned < opts.MaxCount {
		elem, err := nextElement(src)
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		scanned++
		obj, ok := buildObject(elem, parentID, opts)
		if !ok {
			continue
		}
		result.Objects = append(result.Objects, obj)
	}
	result.Truncated = true
	return result, nil
}

// element is one raw container/item occurrence.
type element struct {
	container bool
	attrs     string // start-tag attribute text
	inner     string // element content, empty for self-closing tags
}

// nextElement advances src to the next container or item element and
// captures it. io.EOF means the document ended cleanly before another
// element.
func nextElement(src wire.ByteSource) (element, error) {
	for {
		if err := skipTo(src, '<'); err != nil {
			return element{}, err
		}
		name, delim, err := readName(src)
		if err != nil {
			if err == io.EOF {
				return element{}, &dlna.ProtocolError{Op: "didl", Reason: "unterminated tag"}
			}
			return element{}, err
		}
		var isContainer bool
		switch name {
		case "container":
			isContainer = true
		case "item":
		default:
			continue
		}
		elem := element{container: isContainer}
		selfClosing := false
		switch delim {
		case '>':
		case '/':
			if err := skipTo(src, '>'); err != nil {
				return element{}, err
			}
			selfClosing = true
		default:
			attrs, closed, err := readStartTag(src)
			if err != nil {
				return element{}, err
			}
			elem.attrs = attrs
			selfClosing = closed
		}
		if !selfClosing {
			inner, err := readInner(src, name)
			if err != nil {
				return element{}, err
			}
			elem.inner = inner
		}
		return elem, nil
	}
}

func skipTo(src wire.ByteSource, want byte) error {
	for {
		b, err := src.ReadByte()
		if err != nil {
			return err
		}
		if b == want {
			return nil
		}
	}
}

// readName reads the tag name after '<' and returns the delimiter that
// ended it (space, '>' or '/').
func readName(src wire.ByteSource) (string, byte, error) {
	var sb strings.Builder
	for sb.Len() < 64 {
		b, err := src.ReadByte()
		if err != nil {
			return "", 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n', '>', '/':
			return sb.String(), b, nil
		default:
			sb.WriteByte(b)
		}
	}
	return "", 0, &dlna.ProtocolError{Op: "didl", Reason: "tag name too long"}
}

// readStartTag captures attribute text up to the closing '>' and
// reports whether the tag was self-closing.
func readStartTag(src wire.ByteSource) (string, bool, error) {
	var sb strings.Builder
	inQuote := byte(0)
	for sb.Len() < maxElementBytes {
		b, err := src.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", false, &dlna.ProtocolError{Op: "didl", Reason: "unterminated start tag"}
			}
			return "", false, err
		}
		if inQuote != 0 {
			if b == inQuote {
				inQuote = 0
			}
			sb.WriteByte(b)
			continue
		}
		switch b {
		case '"', '\'':
			inQuote = b
			sb.WriteByte(b)
		case '>':
			attrs := sb.String()
			if strings.HasSuffix(attrs, "/") {
				return strings.TrimSuffix(attrs, "/"), true, nil
			}
			return attrs, false, nil
		default:
			sb.WriteByte(b)
		}
	}
	return "", false, &dlna.ProtocolError{Op: "didl", Reason: "start tag too long"}
}

// readInner captures content up to the matching end tag. Browse results
// list containers and items flat, so no nesting of the same tag is
// expected.
func readInner(src wire.ByteSource, name string) (string, error) {
	closing := "</" + name + ">"
	var sb strings.Builder
	for sb.Len() < maxElementBytes {
		b, err := src.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", &dlna.ProtocolError{Op: "didl", Reason: "unterminated <" + name + "> element"}
			}
			return "", err
		}
		sb.WriteByte(b)
		if b == '>' && strings.HasSuffix(sb.String(), closing) {
			s := sb.String()
			return s[:len(s)-len(closing)], nil
		}
	}
	return "", &dlna.ProtocolError{Op: "didl", Reason: "element exceeds size bound"}
}

// buildObject applies the quirk rules and produces a record, or reports
// that the element should be skipped.
func buildObject(elem element, parentID string, opts Options) (dlna.MediaObject, bool) {
	obj := dlna.MediaObject{IsDirectory: elem.container}

	id, hasID := scanAttr(elem.attrs, "id")
	if !hasID {
		// An entry without an id cannot be browsed or fetched.
		return obj, false
	}
	obj.ID = id
	obj.Name = childText(elem.inner, "title")

	if reported, ok := scanAttr(elem.attrs, "parentID"); ok {
		if opts.StrictParentID && reported != parentID {
			return obj, false
		}
		obj.ParentID = reported
	} else {
		obj.ParentID = parentID
	}

	if elem.container {
		if raw, ok := scanAttr(elem.attrs, "childCount"); ok {
			if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
				obj.Size = n
			} else {
				obj.SizeMissing = true
			}
		} else {
			obj.SizeMissing = true
		}
		if raw, ok := scanAttr(elem.attrs, "searchable"); ok {
			obj.Searchable = raw == "1" || strings.EqualFold(raw, "true")
		} else {
			obj.Searchable = opts.AssumeSearchable
		}
		return obj, true
	}

	obj.Artist = childText(elem.inner, "artist")
	obj.Album = childText(elem.inner, "album")
	obj.AlbumArtURI = childText(elem.inner, "albumArtURI")
	obj.IconURI = childText(elem.inner, "icon")

	resAttrs, resValue := firstRes(elem.inner)
	if raw, ok := scanAttr(resAttrs, "size"); ok {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			obj.Size = n
		} else {
			obj.SizeMissing = true
		}
	} else {
		obj.SizeMissing = true
	}
	if raw, ok := scanAttr(resAttrs, "bitrate"); ok {
		if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
			obj.Bitrate = uint32(n)
		}
	}
	if raw, ok := scanAttr(resAttrs, "sampleFrequency"); ok {
		if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
			obj.SampleFrequency = uint32(n)
		}
	}
	protocolInfo, _ := scanAttr(resAttrs, "protocolInfo")
	obj.FileType = classify(childText(elem.inner, "class"), protocolInfo)

	if resValue != "" {
		ip, port, path := splitLocator(resValue)
		obj.URI = path
		obj.DownloadIP = ip
		obj.DownloadPort = port
	}

	if obj.Size == 0 && !obj.SizeMissing && !opts.ShowEmpty {
		// Placeholder noise: declared-empty items are hidden by default.
		return obj, false
	}
	return obj, true
}

// scanAttr finds attribute name in attrs and returns its quoted value.
func scanAttr(attrs, name string) (string, bool) {
	for pos := 0; pos < len(attrs); {
		idx := strings.Index(attrs[pos:], name+"=")
		if idx < 0 {
			return "", false
		}
		idx += pos
		// Reject suffix matches like parentID= when looking for id=.
		if idx > 0 {
			prev := attrs[idx-1]
			if prev != ' ' && prev != '\t' && prev != '\r' && prev != '\n' {
				pos = idx + len(name) + 1
				continue
			}
		}
		rest := attrs[idx+len(name)+1:]
		if len(rest) == 0 {
			return "", false
		}
		quote := rest[0]
		if quote != '"' && quote != '\'' {
			pos = idx + len(name) + 1
			continue
		}
		end := strings.IndexByte(rest[1:], quote)
		if end < 0 {
			return "", false
		}
		return rest[1 : 1+end], true
	}
	return "", false
}

// childText returns the text of the first child element whose local
// name matches, regardless of namespace prefix.
func childText(inner, local string) string {
	start, contentPos := findChild(inner, local)
	if start < 0 {
		return ""
	}
	if contentPos >= 2 && inner[contentPos-2] == '/' {
		return "" // self-closing child
	}
	end := strings.Index(inner[contentPos:], "</")
	if end < 0 {
		return ""
	}
	return unescape(strings.TrimSpace(inner[contentPos : contentPos+end]))
}

// unescape undoes one level of entity escaping. DIDL text inside the
// SOAP Result element is escaped twice, so after the stream-level decode
// text fields still carry one layer.
func unescape(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	replacer := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&amp;", "&",
	)
	return replacer.Replace(s)
}

// findChild locates "<[prefix:]local" and returns the tag offset and
// the offset just past the start tag's '>'. (-1, -1) when absent.
func findChild(inner, local string) (int, int) {
	for pos := 0; pos < len(inner); {
		lt := strings.IndexByte(inner[pos:], '<')
		if lt < 0 {
			return -1, -1
		}
		lt += pos
		nameStart := lt + 1
		nameEnd := nameStart
		for nameEnd < len(inner) && !isNameDelim(inner[nameEnd]) {
			nameEnd++
		}
		name := inner[nameStart:nameEnd]
		if colon := strings.IndexByte(name, ':'); colon >= 0 {
			name = name[colon+1:]
		}
		if name == local {
			gt := strings.IndexByte(inner[nameEnd:], '>')
			if gt < 0 {
				return -1, -1
			}
			return lt, nameEnd + gt + 1
		}
		pos = nameEnd
	}
	return -1, -1
}

func isNameDelim(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '>' || b == '/'
}

// firstRes returns the attribute text and value of the first res child.
func firstRes(inner string) (attrs, value string) {
	start, contentPos := findChild(inner, "res")
	if start < 0 {
		return "", ""
	}
	tagEnd := contentPos - 1 // offset of '>'
	attrs = " " + strings.TrimSpace(inner[start+len("<res"):tagEnd])
	if strings.HasSuffix(attrs, "/") {
		return strings.TrimSuffix(attrs, "/"), ""
	}
	end := strings.Index(inner[contentPos:], "</")
	if end < 0 {
		return attrs, ""
	}
	return attrs, unescape(strings.TrimSpace(inner[contentPos : contentPos+end]))
}

// classify maps the UPnP class, falling back to the protocolInfo MIME
// hint when the class is absent or unhelpful.
func classify(class, protocolInfo string) dlna.FileType {
	class = strings.ToLower(class)
	switch {
	case strings.Contains(class, "audioitem"), strings.Contains(class, "musictrack"):
		return dlna.FileTypeAudio
	case strings.Contains(class, "videoitem"), strings.Contains(class, "videoclip"), strings.Contains(class, "movie"):
		return dlna.FileTypeVideo
	case strings.Contains(class, "imageitem"), strings.Contains(class, "photo"):
		return dlna.FileTypeImage
	}
	mime := mimeFromProtocolInfo(protocolInfo)
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return dlna.FileTypeAudio
	case strings.HasPrefix(mime, "video/"):
		return dlna.FileTypeVideo
	case strings.HasPrefix(mime, "image/"):
		return dlna.FileTypeImage
	}
	return dlna.FileTypeOther
}

func mimeFromProtocolInfo(protocolInfo string) string {
	parts := strings.Split(protocolInfo, ":")
	if len(parts) >= 3 {
		return strings.ToLower(strings.TrimSpace(parts[2]))
	}
	return ""
}

// splitLocator breaks a res URL into download host, port and request
// path. The download endpoint may legitimately differ from the browsing
// server's control endpoint.
func splitLocator(res string) (ip string, port uint16, path string) {
	u, err := url.Parse(res)
	if err != nil || u.Host == "" {
		return "", 0, res
	}
	port = 80
	if p := u.Port(); p != "" {
		if n, err := strconv.ParseUint(p, 10, 16); err == nil {
			port = uint16(n)
		}
	}
	path = u.RequestURI()
	return u.Hostname(), port, path
}
