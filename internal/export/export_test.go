package export

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/gazemap/internal/model"
)

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 512_000_000, time.UTC)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"/":                  "home",
		"":                   "home",
		"/shop":              "shop",
		"/shop/products/12":  "shop_products_12",
		"/shop?sort=price":   "shop_sort_price",
		"/café":              "caf_",
		"relative/path.html": "relative_path.html",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilenames(t *testing.T) {
	if got := CSVName("/shop/cart", fixedNow); got != "eyetracking_shop_cart_2024-03-05T14-07-09.csv" {
		t.Fatalf("unexpected csv name %q", got)
	}
	if got := ImageName("/", fixedNow); got != "heatmap_home_2024-03-05T14-07-09.png" {
		t.Fatalf("unexpected image name %q", got)
	}
}

func TestCSVRows(t *testing.T) {
	samples := []model.GazeSample{
		{X: 100, Y: 100, Timestamp: 1000, Page: "/a"},
		{X: 110.5, Y: 100, Timestamp: 1050, Page: "/a"},
	}
	art, err := CSV(samples, "/a", fixedNow)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	want := "x,y,timestamp,page\n100,100,1000,/a\n110.5,100,1050,/a\n"
	if string(art.Bytes) != want {
		t.Fatalf("unexpected csv:\n%s", art.Bytes)
	}
	if art.Rows != 2 || art.Kind != model.ArtifactCSV || art.Page != "/a" {
		t.Fatalf("unexpected artifact %+v", art)
	}
}

func TestCSVQuotesPageOnlyWhenNeeded(t *testing.T) {
	samples := []model.GazeSample{{X: 1, Y: 2, Timestamp: 3, Page: "/search?q=a,b"}}
	art, err := CSV(samples, samples[0].Page, fixedNow)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if !strings.Contains(string(art.Bytes), `1,2,3,"/search?q=a,b"`) {
		t.Fatalf("expected quoted page, got %s", art.Bytes)
	}
}

func TestCSVEmpty(t *testing.T) {
	if _, err := CSV(nil, "/", fixedNow); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestParseCSVRoundTrip(t *testing.T) {
	samples := []model.GazeSample{
		{X: 0.25, Y: 1e6, Timestamp: 1, Page: "/a"},
		{X: -3, Y: 7, Timestamp: 2, Page: "/a,b"},
	}
	art, err := CSV(samples, "/a", fixedNow)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	got, err := ParseCSV(bytes.NewReader(art.Bytes))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample %d: got %+v want %+v", i, got[i], samples[i])
		}
	}
}

func TestParseCSVRejectsHeader(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("a,b,c,d\n")); err == nil {
		t.Fatalf("expected header error")
	}
}

func TestLocaleDateTime(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	cases := map[string]string{
		"":      "3/5/2024, 2:07:09 PM",
		"en-US": "3/5/2024, 2:07:09 PM",
		"it-IT": "5/3/2024, 14:07:09",
		"de":    "5.3.2024, 14:07:09",
		"en-GB": "05/03/2024, 14:07:09",
		"ja":    "2024/3/5 14:07:09",
		"zz-ZZ": "3/5/2024, 2:07:09 PM",
	}
	for name, want := range cases {
		if got := ParseLocale(name).DateTime(at); got != want {
			t.Fatalf("locale %q: got %q want %q", name, got, want)
		}
	}
}

func TestLocaleCount(t *testing.T) {
	if got := ParseLocale("en").Count(1234567); got != "1,234,567" {
		t.Fatalf("unexpected en count %q", got)
	}
	if got := ParseLocale("de").Count(1234567); got != "1.234.567" {
		t.Fatalf("unexpected de count %q", got)
	}
}

func TestImageAddsInfoBar(t *testing.T) {
	surface := image.NewRGBA(image.Rect(0, 0, 320, 200))
	art, err := Image(surface, "/shop", fixedNow, ParseLocale("en-US"))
	if err != nil {
		t.Fatalf("image: %v", err)
	}
	if art.Filename != "heatmap_shop_2024-03-05T14-07-09.png" || art.Kind != model.ArtifactImage {
		t.Fatalf("unexpected artifact %+v", art)
	}
	img, err := png.Decode(bytes.NewReader(art.Bytes))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds() != surface.Bounds() {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
	// Top of the image stays untouched, the bar corner is translucent black.
	if _, _, _, a := img.At(5, 5).RGBA(); a != 0 {
		t.Fatalf("expected transparent top, alpha %d", a)
	}
	c := color.NRGBAModel.Convert(img.At(315, 198)).(color.NRGBA)
	if c.A != 179 || c.R != 0 {
		t.Fatalf("unexpected bar pixel %+v", c)
	}
	white := false
	for y := 200 - 40; y < 200 && !white; y++ {
		for x := 0; x < 200; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r > 0xf000 && g > 0xf000 && b > 0xf000 {
				white = true
				break
			}
		}
	}
	if !white {
		t.Fatalf("expected label text in the bar")
	}
	for i := range surface.Pix {
		if surface.Pix[i] != 0 {
			t.Fatalf("source surface was modified")
		}
	}
}

func TestImageWithoutSurface(t *testing.T) {
	if _, err := Image(nil, "/", fixedNow, ParseLocale("")); !errors.Is(err, ErrNoSurface) {
		t.Fatalf("expected ErrNoSurface, got %v", err)
	}
}

func TestDirSinkSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	sink := DirSink{Dir: dir}
	path, err := sink.Save(model.Artifact{Filename: "a.csv", Bytes: []byte("x,y,timestamp,page\n")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "x,y,timestamp,page\n" {
		t.Fatalf("unexpected content %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the artifact, got %d entries", len(entries))
	}
}
