package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// newXMLDecoder returns a decoder that understands the legacy charsets some
// OAI-PMH endpoints still declare.
func newXMLDecoder(r io.Reader) *xml.Decoder {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return decoder
}

// StreamXML decodes every element whose local name is one of elementNames,
// at any depth, and sends it to the returned channel. Both channels are
// closed when the input is exhausted, on the first error, or when ctx is done.
func StreamXML[T any](ctx context.Context, r io.Reader, elementNames ...string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		wanted := make(map[string]struct{}, len(elementNames))
		for _, n := range elementNames {
			wanted[n] = struct{}{}
		}

		decoder := newXMLDecoder(r)
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}
			if _, ok := wanted[se.Name.Local]; !ok {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// CollectXML drains StreamXML into a slice.
func CollectXML[T any](ctx context.Context, r io.Reader, elementNames ...string) ([]T, error) {
	itemCh, errCh := StreamXML[T](ctx, r, elementNames...)
	var items []T
	for item := range itemCh {
		items = append(items, item)
	}
	if err := <-errCh; err != nil {
		return items, err
	}
	return items, nil
}
