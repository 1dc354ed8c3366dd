package mcpserver

// DataGuide describes the Onyx data model for LLM consumers. It is served
// as the onyx://guide resource and by the get_guide tool.
const DataGuide = `# Onyx Data Guide

Onyx keeps one state document per user: tasks, life areas, objectives,
milestones, notes and calendar events.

## Tasks

Every task has a ` + "`type`" + `:

| type         | meaning                                              |
|--------------|------------------------------------------------------|
| daily        | habit; completion resets at the start of every day   |
| short_term   | to-do for the coming days                            |
| long_term    | project-sized goal                                   |
| life_area    | task filed under a life area (set areaId)            |
| reminder     | alerts at dueDate + dueTime                          |

Dates are ` + "`YYYY-MM-DD`" + `, times are 24h ` + "`HH:mm`" + `. The add_task tool also
accepts natural language in ` + "`due`" + ` ("tomorrow at 5pm", "next friday").

Tasks tagged ` + "`calendar_only`" + ` appear on the calendar but not in task lists.

## Life areas, objectives, milestones

Objectives belong to an area; milestones belong to an objective. Deleting an
area deletes its tasks and objectives.

## Notes

Free Markdown. When no title is given it is taken from YAML frontmatter
` + "`title`" + `, the first heading, or the first line.
`
