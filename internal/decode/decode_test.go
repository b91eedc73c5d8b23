package decode

import (
	"encoding/binary"
	"testing"
)

func buildEthernetIPv4TCP(payload []byte) []byte {
	frame := make([]byte, 0, 14+20+20+len(payload))
	frame = append(frame, make([]byte, 12)...) // dst/src mac
	frame = append(frame, 0x08, 0x00)           // ethertype IPv4

	ipHeader := make([]byte, 20)
	ipHeader[0] = 0x45 // version 4, IHL 5
	totalLen := uint16(20 + 20 + len(payload))
	binary.BigEndian.PutUint16(ipHeader[2:4], totalLen)
	ipHeader[8] = 64       // ttl
	ipHeader[9] = byte(6)  // TCP
	binary.BigEndian.PutUint32(ipHeader[12:16], 0xC0A8010A) // 192.168.1.10
	binary.BigEndian.PutUint32(ipHeader[16:20], 0x5DB8D822) // 93.184.216.34

	tcpHeader := make([]byte, 20)
	binary.BigEndian.PutUint16(tcpHeader[0:2], 12345)
	binary.BigEndian.PutUint16(tcpHeader[2:4], 80)
	tcpHeader[12] = 5 << 4 // data offset 5

	frame = append(frame, ipHeader...)
	frame = append(frame, tcpHeader...)
	frame = append(frame, payload...)
	return frame
}

func TestFullChainDecode(t *testing.T) {
	frame := buildEthernetIPv4TCP([]byte("testpattern"))

	eth, err := DecodeEthernet(frame)
	if err != nil {
		t.Fatalf("ethernet: %v", err)
	}
	if eth.EtherType != EtherTypeIPv4 {
		t.Fatalf("ethertype = %#x, want IPv4", eth.EtherType)
	}

	ip, err := DecodeIPv4(eth.Payload)
	if err != nil {
		t.Fatalf("ipv4: %v", err)
	}
	if ip.Protocol != ProtoTCP {
		t.Fatalf("protocol = %d, want TCP", ip.Protocol)
	}
	if DottedQuad(ip.SrcIP) != "192.168.1.10" {
		t.Fatalf("src ip = %s", DottedQuad(ip.SrcIP))
	}
	if DottedQuad(ip.DstIP) != "93.184.216.34" {
		t.Fatalf("dst ip = %s", DottedQuad(ip.DstIP))
	}

	tcp, err := DecodeTCP(ip.Payload)
	if err != nil {
		t.Fatalf("tcp: %v", err)
	}
	if tcp.DstPort != 80 || tcp.SrcPort != 12345 {
		t.Fatalf("ports = %d -> %d", tcp.SrcPort, tcp.DstPort)
	}
	if string(tcp.Payload) != "testpattern" {
		t.Fatalf("payload = %q", tcp.Payload)
	}
}

func TestIPv4ClampsToSpanWhenTotalLenOverflows(t *testing.T) {
	ipHeader := make([]byte, 20)
	ipHeader[0] = 0x45
	binary.BigEndian.PutUint16(ipHeader[2:4], 9000) // claims far more than is present
	ipHeader[9] = byte(ProtoUDP)
	span := append(ipHeader, []byte("short")...)

	h, err := DecodeIPv4(span)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(h.Payload) != "short" {
		t.Fatalf("payload = %q, want clamped to %q", h.Payload, "short")
	}
}

func TestDecodeFailures(t *testing.T) {
	if _, err := DecodeEthernet(make([]byte, 10)); err == nil {
		t.Fatal("expected short ethernet frame to fail")
	}
	badVersion := make([]byte, 20)
	badVersion[0] = 0x55
	if _, err := DecodeIPv4(badVersion); err == nil {
		t.Fatal("expected bad version to fail")
	}
	badIHL := make([]byte, 20)
	badIHL[0] = 0x43 // version 4, IHL 3
	if _, err := DecodeIPv4(badIHL); err == nil {
		t.Fatal("expected bad IHL to fail")
	}
	badOffset := make([]byte, 20)
	badOffset[12] = 4 << 4
	if _, err := DecodeTCP(badOffset); err == nil {
		t.Fatal("expected bad data offset to fail")
	}
	if _, err := DecodeUDP(make([]byte, 4)); err == nil {
		t.Fatal("expected short UDP to fail")
	}
}

func TestDNSQuestionShallowDecode(t *testing.T) {
	header := make([]byte, 12)
	binary.BigEndian.PutUint16(header[4:6], 1) // one question

	var qname []byte
	for _, label := range []string{"example", "com"} {
		qname = append(qname, byte(len(label)))
		qname = append(qname, []byte(label)...)
	}
	qname = append(qname, 0)
	qname = append(qname, 0, 1) // type A
	qname = append(qname, 0, 1) // class IN

	span := append(header, qname...)
	h, err := DecodeDNS(span)
	if err != nil {
		t.Fatalf("dns: %v", err)
	}
	if len(h.Questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(h.Questions))
	}
	if h.Questions[0].Name != "example.com" || h.Questions[0].Type != 1 {
		t.Fatalf("question = %+v", h.Questions[0])
	}
}

func TestHTTPRequestLineAndHeaders(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\nbody"
	req, ok := DecodeHTTPRequest([]byte(raw))
	if !ok {
		t.Fatal("expected HTTP decode to succeed")
	}
	if req.Method != "GET" || req.Path != "/index.html" {
		t.Fatalf("request = %+v", req)
	}
	if req.Headers["Host"] != "example.com" {
		t.Fatalf("headers = %+v", req.Headers)
	}
}

func TestNotHTTPFallsBack(t *testing.T) {
	if _, ok := DecodeHTTPRequest([]byte("\x01\x02\x03random binary junk")); ok {
		t.Fatal("expected non-HTTP payload to report not-ok")
	}
}
