package xmladapter

import (
	"strings"
	"testing"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<article>
<front>
<journal-meta><issn pub-type="epub">1234-9876</issn></journal-meta>
<article-meta>
<article-id pub-id-type="publisher-id" specific-use="scielo-v3">AAAAAAAAAAAAAAAAAAAAAAA</article-id>
<article-id pub-id-type="publisher-id" specific-use="scielo-v2">S1234987620227777777</article-id>
<pub-date pub-type="epub"><year>2022</year></pub-date>
<contrib-group><contrib contrib-type="author"><name><surname>Silva</surname><given-names>AM</given-names></name></contrib></contrib-group>
<title-group><article-title>This is an article</article-title></title-group>
</article-meta>
</front>
<body><p>Some body text.</p></body>
</article>`

func TestParseExtractsKnownPaths(t *testing.T) {
	ex, err := Parse([]byte(sampleXML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ex.V3 != "AAAAAAAAAAAAAAAAAAAAAAA" {
		t.Errorf("V3 = %q", ex.V3)
	}
	if ex.V2 != "S1234987620227777777" {
		t.Errorf("V2 = %q", ex.V2)
	}
	if len(ex.Issns) != 1 || ex.Issns[0].Value != "1234-9876" {
		t.Errorf("Issns = %+v", ex.Issns)
	}
	if ex.PubYear != "2022" {
		t.Errorf("PubYear = %q", ex.PubYear)
	}
	if len(ex.Authors) != 1 || ex.Authors[0].Surname != "Silva" {
		t.Errorf("Authors = %+v", ex.Authors)
	}
	if len(ex.Titles) != 1 || ex.Titles[0].Text != "This is an article" {
		t.Errorf("Titles = %+v", ex.Titles)
	}
	if ex.PartialBody != "Some body text." {
		t.Errorf("PartialBody = %q", ex.PartialBody)
	}
}

func TestParseInvalidXML(t *testing.T) {
	_, err := Parse([]byte("<article><unterminated"))
	if err == nil {
		t.Fatal("expected error for malformed xml")
	}
}

func TestRewriteIdsReplacesAllThree(t *testing.T) {
	out, err := RewriteIds([]byte(sampleXML), strings.Repeat("B", 23), "S1234987620229999999", "S1234987620220050555")
	if err != nil {
		t.Fatalf("RewriteIds() error = %v", err)
	}
	s := string(out)
	if strings.Contains(s, "AAAAAAAAAAAAAAAAAAAAAAA") {
		t.Error("old v3 still present")
	}
	if !strings.Contains(s, `specific-use="scielo-v3"`) {
		t.Error("missing scielo-v3 element")
	}
	if !strings.Contains(s, `specific-use="scielo-v2"`) {
		t.Error("missing scielo-v2 element")
	}
	if !strings.Contains(s, `specific-use="previous-pid"`) {
		t.Error("missing previous-pid element")
	}
	if !strings.Contains(s, "This is an article") {
		t.Error("rest of tree was not preserved")
	}
}

func TestRewriteIdsOmitsPreviousPidWhenEmpty(t *testing.T) {
	out, err := RewriteIds([]byte(sampleXML), strings.Repeat("B", 23), "S1234987620229999999", "")
	if err != nil {
		t.Fatalf("RewriteIds() error = %v", err)
	}
	if strings.Contains(string(out), `specific-use="previous-pid"`) {
		t.Error("previous-pid element should be omitted when aopPid is empty")
	}
}
