package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldnotes.ai/internal/markup"
	"fieldnotes.ai/internal/observation"
)

const (
	listHeader = "&7&m-----------------&r &9&lObservation List&r &7&m------------------"
	listFooter = "&7&m-----------------------------------------------------"
)

func (d *Dispatcher) register() {
	d.add(&subCommand{
		base: "observe", description: "Leave an observation where you stand",
		args: []string{"text"}, playerOnly: true, rawArgs: true,
		run: d.observe,
	})
	d.add(&subCommand{
		base: "observations", name: "near", description: "Lists observations near you",
		args: []string{"radius"}, playerOnly: true,
		run: d.near,
	})
	d.add(&subCommand{
		base: "observations", name: "list", description: "Lists all observations",
		args: []string{"[author]"},
		run:  d.list,
	})
	d.add(&subCommand{
		base: "observations", name: "info", description: "Shows details of an observation",
		args: []string{"id"},
		run:  d.info,
	})
	d.add(&subCommand{
		base: "observations", name: "delete", description: "Deletes an observation",
		args: []string{"id"},
		run:  d.delete,
	})
	d.add(&subCommand{
		base: "observations", name: "setexpiration", description: "Changes when an observation expires",
		args: []string{"id", "duration|never"},
		run:  d.setExpiration,
	})
	d.add(&subCommand{
		base: "observations", name: "rerender", description: "Rebuilds the marker of an observation",
		args: []string{"id"},
		run:  d.rerender,
	})
	d.add(&subCommand{
		base: "observations", name: "teleport", description: "Teleports you to an observation",
		args: []string{"id"}, playerOnly: true,
		run: d.teleport,
	})
	d.add(&subCommand{
		base: "observations", name: "help", description: "Shows this list",
		run: func(ctx context.Context, s Sender, args []string) ([]string, error) {
			return d.help("observations"), nil
		},
	})
}

func invalidNumber(arg string) error {
	return fail(ErrInvalidArgument, "&c\"&4"+arg+"&c\" is an invalid number!")
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 0 {
		return 0, invalidNumber(arg)
	}
	return id, nil
}

// withObservation runs fn on the coordinator loop with the observation named by arg.
func (d *Dispatcher) withObservation(ctx context.Context, arg string, fn func(o *observation.Observation) []string) ([]string, error) {
	id, err := parseID(arg)
	if err != nil {
		return nil, err
	}
	var (
		out   []string
		found bool
	)
	if err := d.coord.Exec(ctx, func() {
		o, ok := d.coord.Find(id)
		if !ok {
			return
		}
		found = true
		out = fn(o)
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, fail(ErrNotFound, fmt.Sprintf("&cThere is no observation with id &4%d&c!", id))
	}
	return out, nil
}

// observe handles "/observe [-e <duration>] <text>".
func (d *Dispatcher) observe(ctx context.Context, s Sender, args []string) ([]string, error) {
	var expiresIn time.Duration
	if len(args) >= 1 && (args[0] == "-e" || args[0] == "--expires") {
		if len(args) < 2 {
			return nil, fail(ErrInvalidArgument, "&cMissing argument(s): "+formatArg("duration"), "  &7/observe &7[&3-e &7<&3duration&7>&7] &7<&3text&7>")
		}
		v, never, err := ParseDuration(args[1])
		if err != nil {
			return nil, fail(ErrInvalidArgument, "&c\"&4"+args[1]+"&c\" is an invalid duration!")
		}
		if !never {
			expiresIn = v
		}
		args = args[2:]
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if markup.Visible(markup.Translate(text)) == 0 {
		return nil, fail(ErrInvalidArgument, "&cMissing argument(s): "+formatArg("text"), "  &7/observe &7<&3text&7>")
	}

	now := d.coord.Now()
	if !d.limiter.Allow(s.ID(), now) {
		return nil, fail(ErrRateLimited, "&cYou are making observations too quickly!")
	}

	var expiresAt *time.Time
	if expiresIn > 0 {
		t := now.Add(expiresIn)
		expiresAt = &t
	}
	loc := s.Location()
	if err := d.coord.Exec(ctx, func() {
		d.coord.RequestCreate(s.Name(), loc, text, expiresAt)
	}); err != nil {
		return nil, err
	}
	if expiresAt != nil {
		return []string{"&aObservation created! &7It expires " + d.date(*expiresAt) + "."}, nil
	}
	return []string{"&aObservation created!"}, nil
}

func (d *Dispatcher) near(ctx context.Context, s Sender, args []string) ([]string, error) {
	radius, err := strconv.Atoi(args[0])
	if err != nil || radius < 0 {
		return nil, invalidNumber(args[0])
	}
	loc := s.Location()
	var lines []string
	if err := d.coord.Exec(ctx, func() {
		for _, o := range d.coord.Near(loc.World, loc.Pos, float64(radius)) {
			lines = append(lines, " &7- "+observation.Summary(o))
		}
	}); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fail(ErrNotFound, "&cThere are no observations within &4"+plural(radius, "&cblock")+" of you!")
	}
	out := []string{listHeader, "  &9Radius: &7&o" + plural(radius, "&7block"), ""}
	out = append(out, lines...)
	return append(out, listFooter), nil
}

func (d *Dispatcher) list(ctx context.Context, s Sender, args []string) ([]string, error) {
	author := ""
	if len(args) > 0 {
		author = args[0]
	}
	var lines []string
	if err := d.coord.Exec(ctx, func() {
		for _, o := range d.coord.List() {
			if author != "" && !strings.EqualFold(o.Author(), author) {
				continue
			}
			lines = append(lines, " &7- "+observation.Summary(o))
		}
	}); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		if author != "" {
			return nil, fail(ErrNotFound, "&4"+author+" &chas no observations!")
		}
		return nil, fail(ErrNotFound, "&cThere are no observations!")
	}
	out := []string{listHeader}
	if author != "" {
		out = append(out, "  &9Author: &7&o"+author, "")
	}
	out = append(out, lines...)
	return append(out, listFooter), nil
}

func (d *Dispatcher) info(ctx context.Context, s Sender, args []string) ([]string, error) {
	return d.withObservation(ctx, args[0], func(o *observation.Observation) []string {
		src := o.Source()
		b := src.Block()
		expires := "&7never"
		if t, ok := o.ExpiresAt(); ok {
			expires = "&7" + d.date(t)
		}
		idLine := fmt.Sprintf("&9&lObservation #%d", o.ID())
		if o.ID() == observation.PendingID {
			idLine = "&9&lObservation &7(saving...)"
		}
		return []string{
			idLine,
			"  &9Text: &r" + o.Text(),
			"  &9Author: &7" + o.Author(),
			"  &9Created: &7" + d.date(o.CreatedAt()),
			"  &9Expires: " + expires,
			fmt.Sprintf("  &9Location: &7%s, %d, %d, %d", src.World, b[0], b[1], b[2]),
			"  &9Rendered: &7" + strconv.FormatBool(o.Rendered()),
		}
	})
}

func (d *Dispatcher) delete(ctx context.Context, s Sender, args []string) ([]string, error) {
	return d.withObservation(ctx, args[0], func(o *observation.Observation) []string {
		id := o.ID()
		name := s.Name()
		d.coord.Delete(o, func(err error) {
			if err != nil {
				d.log.Printf("observation %d deleted by %s but not deactivated in store: %v", id, name, err)
			}
		})
		return []string{fmt.Sprintf("&aObservation &2%d &ahas been deleted!", id)}
	})
}

func (d *Dispatcher) setExpiration(ctx context.Context, s Sender, args []string) ([]string, error) {
	dur, never, err := ParseDuration(args[1])
	if err != nil {
		return nil, fail(ErrInvalidArgument, "&c\"&4"+args[1]+"&c\" is an invalid duration!")
	}
	return d.withObservation(ctx, args[0], func(o *observation.Observation) []string {
		if never {
			d.coord.SetExpiration(o, nil)
			return []string{fmt.Sprintf("&aObservation &2%d &awill never expire.", o.ID())}
		}
		t := d.coord.Now().Add(dur)
		d.coord.SetExpiration(o, &t)
		return []string{fmt.Sprintf("&aObservation &2%d &awill expire %s.", o.ID(), d.date(t))}
	})
}

func (d *Dispatcher) rerender(ctx context.Context, s Sender, args []string) ([]string, error) {
	return d.withObservation(ctx, args[0], func(o *observation.Observation) []string {
		if !d.coord.ReRender(o) {
			return []string{fmt.Sprintf("&cObservation &4%d &cis still being saved!", o.ID())}
		}
		if !o.Rendered() {
			return []string{fmt.Sprintf("&cObservation &4%d &ccould not be displayed!", o.ID())}
		}
		return []string{fmt.Sprintf("&aObservation &2%d &ahas been re-rendered!", o.ID())}
	})
}

func (d *Dispatcher) teleport(ctx context.Context, s Sender, args []string) ([]string, error) {
	var dest observation.Location
	out, err := d.withObservation(ctx, args[0], func(o *observation.Observation) []string {
		dest = o.Source()
		return []string{fmt.Sprintf("&aTeleported to observation &2%d&a!", o.ID())}
	})
	if err != nil {
		return nil, err
	}
	s.Teleport(dest)
	return out, nil
}
