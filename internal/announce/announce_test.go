package announce

import "testing"

func TestRenderDefaultTemplate(t *testing.T) {
	got := Render("", Data{Name: "Aria", Mention: "<@&9>", Platform: "Claude", Owner: "nina", OwnerMention: "<@1>"})
	want := "**Aria** (Claude) has joined this server. You can mention them with <@&9>.\nPartnered with **nina**"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRenderDropsLineWithAbsentPlatform(t *testing.T) {
	got := Render(Default, Data{Name: "Aria", Mention: "<@&9>", Owner: "nina"})
	want := "Partnered with **nina**"
	if got != want {
		t.Fatalf("expected the platform line to be dropped, got %q", got)
	}
}

func TestRenderDropsLineWithAbsentOwner(t *testing.T) {
	got := Render(Default, Data{Name: "Aria", Mention: "<@&9>", Platform: "GPT"})
	want := "**Aria** (GPT) has joined this server. You can mention them with <@&9>."
	if got != want {
		t.Fatalf("expected the owner line to be dropped, got %q", got)
	}
}

func TestRenderCustomTemplate(t *testing.T) {
	got := Render("Welcome {name}!", Data{Name: "Aria"})
	if got != "Welcome Aria!" {
		t.Fatalf("got %q", got)
	}
}
