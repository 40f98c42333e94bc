package slackchat

import (
	"github.com/bissquit/incident-bot/internal/chat"
	"github.com/slack-go/slack"
)

func messageOptions(msg chat.Message) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if blocks := toBlocks(msg.Sections); len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	return opts
}

func toBlocks(sections []chat.Section) []slack.Block {
	blocks := make([]slack.Block, 0, len(sections))

	for _, s := range sections {
		switch s.Kind {
		case chat.SectionHeader:
			blocks = append(blocks, slack.NewHeaderBlock(
				slack.NewTextBlockObject(slack.PlainTextType, s.Text, true, false),
				slack.HeaderBlockOptionBlockID(s.ID),
			))

		case chat.SectionText:
			blocks = append(blocks, slack.NewSectionBlock(
				markdown(s.Text), nil, nil,
				slack.SectionBlockOptionBlockID(s.ID),
			))

		case chat.SectionFields:
			fields := make([]*slack.TextBlockObject, 0, len(s.Fields))
			for _, f := range s.Fields {
				fields = append(fields, markdown(f))
			}
			var text *slack.TextBlockObject
			if s.Text != "" {
				text = markdown(s.Text)
			}
			blocks = append(blocks, slack.NewSectionBlock(text, fields, nil, slack.SectionBlockOptionBlockID(s.ID)))

		case chat.SectionActions:
			elements := make([]slack.BlockElement, 0, len(s.Controls))
			for _, c := range s.Controls {
				if el := toElement(c); el != nil {
					elements = append(elements, el)
				}
			}
			blocks = append(blocks, slack.NewActionBlock(s.ID, elements...))

		case chat.SectionContext:
			blocks = append(blocks, slack.NewContextBlock(s.ID, markdown(s.Text)))

		case chat.SectionDivider:
			blocks = append(blocks, slack.NewDividerBlock())
		}
	}

	return blocks
}

func toElement(c chat.Control) slack.BlockElement {
	label := slack.NewTextBlockObject(slack.PlainTextType, c.Label, true, false)

	switch c.Kind {
	case chat.ControlButton:
		return slack.NewButtonBlockElement(c.ActionID, c.Value, label)

	case chat.ControlStaticSelect:
		options := make([]*slack.OptionBlockObject, 0, len(c.Options))
		var initial *slack.OptionBlockObject
		for _, o := range c.Options {
			opt := slack.NewOptionBlockObject(o.Value, slack.NewTextBlockObject(slack.PlainTextType, o.Label, true, false), nil)
			if o.Value == c.Selected {
				initial = opt
			}
			options = append(options, opt)
		}
		el := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, label, c.ActionID, options...)
		el.InitialOption = initial
		return el

	case chat.ControlUserSelect:
		el := slack.NewOptionsSelectBlockElement(slack.OptTypeUser, label, c.ActionID)
		if c.Selected != "" {
			el.InitialUser = c.Selected
		}
		return el
	}

	return nil
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}
